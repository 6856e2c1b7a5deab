// Package negotiation resolves client constraints against what a remote
// endpoint advertises. Every function here is pure: it never substitutes a
// supported value for an unsupported one and never fills in defaults. A
// constraint is either an exact member of the advertised set or the call
// fails with a negotiation error naming the field.
package negotiation

import (
	"rillconf/internal/core/domain"
	apperrors "rillconf/pkg/errors"
)

// ResolveSubscription validates opts against caps. Kinds left nil in opts
// are not subscribed. A video RID short-circuits every other video field.
func ResolveSubscription(caps domain.SubscriptionCapabilities, opts domain.SubscribeOptions) (domain.ResolvedSubscription, error) {
	var resolved domain.ResolvedSubscription

	if opts.Audio != nil {
		audio, err := resolveAudio(caps.Audio, *opts.Audio)
		if err != nil {
			return domain.ResolvedSubscription{}, err
		}
		resolved.Audio = audio
	}

	if opts.Video != nil {
		video, err := resolveVideo(caps.Video, *opts.Video)
		if err != nil {
			return domain.ResolvedSubscription{}, err
		}
		resolved.Video = video
	}

	return resolved, nil
}

func resolveAudio(caps *domain.AudioSubscriptionCapabilities, c domain.AudioSubscriptionConstraints) (*domain.AudioSubscriptionConstraints, error) {
	if caps == nil {
		return nil, apperrors.NewNegotiationError("audio", "subscription")
	}
	out := &domain.AudioSubscriptionConstraints{}
	for _, want := range c.Codecs {
		if err := want.Validate(); err != nil {
			return nil, err
		}
		if !containsAudioCodec(caps.Codecs, want) {
			return nil, apperrors.NewNegotiationError("audio.codec", want.String())
		}
		out.Codecs = append(out.Codecs, copyAudioCodec(want))
	}
	return out, nil
}

func resolveVideo(caps *domain.VideoSubscriptionCapabilities, c domain.VideoSubscriptionConstraints) (*domain.VideoSubscriptionConstraints, error) {
	if caps == nil {
		return nil, apperrors.NewNegotiationError("video", "subscription")
	}

	if c.RID != nil {
		if !contains(caps.RIDs, *c.RID) {
			return nil, apperrors.NewNegotiationError("video.rid", *c.RID)
		}
		return &domain.VideoSubscriptionConstraints{RID: domain.Ptr(*c.RID)}, nil
	}

	out := &domain.VideoSubscriptionConstraints{}
	for _, want := range c.Codecs {
		if err := want.Validate(); err != nil {
			return nil, err
		}
		if !containsVideoCodec(caps.Codecs, want) {
			return nil, apperrors.NewNegotiationError("video.codec", want.String())
		}
		out.Codecs = append(out.Codecs, copyVideoCodec(want))
	}

	fields := videoFields{
		Resolution:        c.Resolution,
		FrameRate:         c.FrameRate,
		BitrateMultiplier: c.BitrateMultiplier,
		KeyFrameInterval:  c.KeyFrameInterval,
	}
	if err := fields.check(caps); err != nil {
		return nil, err
	}
	out.Resolution = copyPtr(c.Resolution)
	out.FrameRate = copyPtr(c.FrameRate)
	out.BitrateMultiplier = copyPtr(c.BitrateMultiplier)
	out.KeyFrameInterval = copyPtr(c.KeyFrameInterval)
	return out, nil
}

// ValidateUpdate checks a subscription update field by field against the
// capabilities recorded when the subscription was created.
func ValidateUpdate(caps domain.SubscriptionCapabilities, update domain.SubscriptionUpdateOptions) error {
	if update.Video == nil {
		return nil
	}
	if caps.Video == nil {
		return apperrors.NewNegotiationError("video", "update")
	}
	fields := videoFields{
		Resolution:        update.Video.Resolution,
		FrameRate:         update.Video.FrameRate,
		BitrateMultiplier: update.Video.BitrateMultiplier,
		KeyFrameInterval:  update.Video.KeyFrameInterval,
	}
	return fields.check(caps.Video)
}

// ResolvePublication validates publish options against the codecs the
// remote side accepts and returns the settings the publication will carry.
// Empty encoding lists resolve to empty settings.
func ResolvePublication(caps domain.PublicationCapabilities, opts domain.PublishOptions) (domain.PublicationSettings, error) {
	var settings domain.PublicationSettings

	for _, enc := range opts.Audio {
		if err := enc.Validate(); err != nil {
			return domain.PublicationSettings{}, err
		}
		s := domain.AudioPublicationSettings{}
		if enc.Codec != nil {
			if !containsAudioCodec(caps.Audio, *enc.Codec) {
				return domain.PublicationSettings{}, apperrors.NewNegotiationError("audio.codec", enc.Codec.String())
			}
			c := copyAudioCodec(*enc.Codec)
			s.Codec = &c
		}
		settings.Audio = append(settings.Audio, s)
	}

	for _, enc := range opts.Video {
		if err := enc.Validate(); err != nil {
			return domain.PublicationSettings{}, err
		}
		s := domain.VideoPublicationSettings{Bitrate: copyPtr(enc.MaxBitrate)}
		if enc.Codec != nil {
			if !containsVideoCodec(caps.Video, *enc.Codec) {
				return domain.PublicationSettings{}, apperrors.NewNegotiationError("video.codec", enc.Codec.String())
			}
			c := copyVideoCodec(*enc.Codec)
			s.Codec = &c
		}
		settings.Video = append(settings.Video, s)
	}

	return settings, nil
}

// videoFields is the part of the video constraint shared by subscribe and
// update requests.
type videoFields struct {
	Resolution        *domain.Resolution
	FrameRate         *int
	BitrateMultiplier *float64
	KeyFrameInterval  *int
}

func (f videoFields) check(caps *domain.VideoSubscriptionCapabilities) error {
	if f.Resolution != nil && !contains(caps.Resolutions, *f.Resolution) {
		return apperrors.NewNegotiationError("video.resolution", f.Resolution.String())
	}
	if f.FrameRate != nil && !contains(caps.FrameRates, *f.FrameRate) {
		return apperrors.NewNegotiationError("video.frameRate", *f.FrameRate)
	}
	if f.BitrateMultiplier != nil && !contains(caps.BitrateMultipliers, *f.BitrateMultiplier) {
		return apperrors.NewNegotiationError("video.bitrateMultiplier", *f.BitrateMultiplier)
	}
	if f.KeyFrameInterval != nil && !contains(caps.KeyFrameIntervals, *f.KeyFrameInterval) {
		return apperrors.NewNegotiationError("video.keyFrameInterval", *f.KeyFrameInterval)
	}
	return nil
}

func contains[T comparable](set []T, v T) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

func containsAudioCodec(set []domain.AudioCodecParameters, want domain.AudioCodecParameters) bool {
	for _, offered := range set {
		if want.Matches(offered) {
			return true
		}
	}
	return false
}

func containsVideoCodec(set []domain.VideoCodecParameters, want domain.VideoCodecParameters) bool {
	for _, offered := range set {
		if want.Matches(offered) {
			return true
		}
	}
	return false
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyAudioCodec(c domain.AudioCodecParameters) domain.AudioCodecParameters {
	return domain.AudioCodecParameters{
		Name:         c.Name,
		ChannelCount: copyPtr(c.ChannelCount),
		ClockRate:    copyPtr(c.ClockRate),
	}
}

func copyVideoCodec(c domain.VideoCodecParameters) domain.VideoCodecParameters {
	return domain.VideoCodecParameters{Name: c.Name, Profile: copyPtr(c.Profile)}
}
