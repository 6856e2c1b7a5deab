package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxIDLength = 128

var (
	// IDRegex matches server and client generated identifiers: conference,
	// participant, stream and session ids.
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	// ICESchemeRegex matches the schemes accepted in ICE server URLs.
	ICESchemeRegex = regexp.MustCompile(`^(stun|stuns|turn|turns):`)
)

// ValidateID validates an identifier received from a caller.
func ValidateID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, maxIDLength)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

// ValidateURL validates URL format. When schemes is non-empty the URL must
// use one of them.
func ValidateURL(urlStr string, schemes ...string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if len(schemes) > 0 && !contains(schemes, u.Scheme) {
		return fmt.Errorf("invalid URL scheme %q (must be %s)", u.Scheme, strings.Join(schemes, " or "))
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateICEURL validates a STUN or TURN server URL. These are opaque URLs
// without a "//" authority, so ValidateURL does not apply.
func ValidateICEURL(urlStr string) error {
	if !ICESchemeRegex.MatchString(urlStr) {
		return fmt.Errorf("invalid ICE server URL %q (must be stun, stuns, turn or turns)", urlStr)
	}
	if _, host, _ := strings.Cut(urlStr, ":"); host == "" {
		return fmt.Errorf("ICE server URL %q must have a host", urlStr)
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
