package webrtc

import (
	"strings"

	"rillconf/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

const (
	mimeTypeH265 = "video/H265"
	mimeTypeAV1  = "video/AV1"
)

// codecEntry binds a catalog codec to the RTP parameters the client
// registers with its media engine.
type codecEntry struct {
	audio domain.AudioCodec
	video domain.VideoCodec
	// profile is matched against a video codec's Profile; empty matches
	// any request without a profile.
	profile string
	params  webrtc.RTPCodecParameters
}

var codecTable = []codecEntry{
	{audio: domain.AudioCodecOpus, params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"},
		PayloadType:        111,
	}},
	{audio: domain.AudioCodecG722, params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeG722, ClockRate: 8000},
		PayloadType:        9,
	}},
	{audio: domain.AudioCodecPCMU, params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
		PayloadType:        0,
	}},
	{audio: domain.AudioCodecPCMA, params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000},
		PayloadType:        8,
	}},
	{video: domain.VideoCodecVP8, params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		PayloadType:        96,
	}},
	{video: domain.VideoCodecVP9, params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0"},
		PayloadType:        98,
	}},
	{video: domain.VideoCodecH264, profile: "CB", params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"},
		PayloadType:        102,
	}},
	{video: domain.VideoCodecH264, profile: "H", params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=640032"},
		PayloadType:        112,
	}},
	{video: domain.VideoCodecH265, params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mimeTypeH265, ClockRate: 90000},
		PayloadType:        116,
	}},
	{video: domain.VideoCodecAV1, params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mimeTypeAV1, ClockRate: 90000},
		PayloadType:        41,
	}},
}

// registerCodecs fills m with every codec the client can send or receive.
func registerCodecs(m *webrtc.MediaEngine) error {
	for _, e := range codecTable {
		kind := webrtc.RTPCodecTypeVideo
		if e.audio != "" {
			kind = webrtc.RTPCodecTypeAudio
		}
		if err := m.RegisterCodec(e.params, kind); err != nil {
			return err
		}
	}
	return nil
}

// audioPreferences returns the RTP codecs matching wanted, in the order
// requested. An empty wanted list yields nil, leaving the default order.
func audioPreferences(wanted []domain.AudioCodecParameters) []webrtc.RTPCodecParameters {
	var out []webrtc.RTPCodecParameters
	for _, w := range wanted {
		for _, e := range codecTable {
			if e.audio == "" || e.audio != w.Name {
				continue
			}
			if w.ClockRate != nil && uint32(*w.ClockRate) != e.params.ClockRate {
				continue
			}
			if w.ChannelCount != nil && uint16(*w.ChannelCount) != channels(e.params) {
				continue
			}
			out = append(out, e.params)
		}
	}
	return out
}

func videoPreferences(wanted []domain.VideoCodecParameters) []webrtc.RTPCodecParameters {
	var out []webrtc.RTPCodecParameters
	for _, w := range wanted {
		for _, e := range codecTable {
			name := w.Name
			if name == domain.VideoCodecAV1X {
				name = domain.VideoCodecAV1
			}
			if e.video == "" || e.video != name {
				continue
			}
			if w.Profile != nil && *w.Profile != e.profile {
				continue
			}
			out = append(out, e.params)
		}
	}
	return out
}

func channels(p webrtc.RTPCodecParameters) uint16 {
	if p.Channels == 0 {
		return 1
	}
	return p.Channels
}

// AudioCodecFromRTP maps negotiated RTP parameters back to the catalog.
func AudioCodecFromRTP(p webrtc.RTPCodecParameters) (domain.AudioCodecParameters, bool) {
	for _, e := range codecTable {
		if e.audio != "" && strings.EqualFold(e.params.MimeType, p.MimeType) {
			clock := int(p.ClockRate)
			ch := int(channels(p))
			return domain.AudioCodecParameters{Name: e.audio, ClockRate: &clock, ChannelCount: &ch}, true
		}
	}
	return domain.AudioCodecParameters{}, false
}

// VideoCodecFromRTP maps negotiated RTP parameters back to the catalog. H.264
// profiles are told apart by profile-level-id.
func VideoCodecFromRTP(p webrtc.RTPCodecParameters) (domain.VideoCodecParameters, bool) {
	for _, e := range codecTable {
		if e.video == "" || !strings.EqualFold(e.params.MimeType, p.MimeType) {
			continue
		}
		if e.profile == "" {
			return domain.VideoCodecParameters{Name: e.video}, true
		}
		if prefixOf(profileLevelID(e.params.SDPFmtpLine)) == prefixOf(profileLevelID(p.SDPFmtpLine)) {
			return domain.VideoCodecParameters{Name: e.video, Profile: domain.Ptr(e.profile)}, true
		}
	}
	return domain.VideoCodecParameters{}, false
}

func profileLevelID(fmtp string) string {
	for _, kv := range strings.Split(fmtp, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if ok && k == "profile-level-id" {
			return strings.ToLower(v)
		}
	}
	return ""
}

func prefixOf(id string) string {
	if len(id) < 4 {
		return id
	}
	return id[:4]
}
