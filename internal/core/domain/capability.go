package domain

// AudioSubscriptionCapabilities is the audio menu a remote endpoint offers
// for subscription.
type AudioSubscriptionCapabilities struct {
	Codecs []AudioCodecParameters `json:"codecs"`
}

// VideoSubscriptionCapabilities is the video menu a remote endpoint offers
// for subscription. RIDs lists the simulcast layers of the original
// publication.
type VideoSubscriptionCapabilities struct {
	Codecs             []VideoCodecParameters `json:"codecs"`
	Resolutions        []Resolution           `json:"resolutions"`
	FrameRates         []int                  `json:"frameRates"`
	BitrateMultipliers []float64              `json:"bitrateMultipliers"`
	KeyFrameIntervals  []int                  `json:"keyFrameIntervals"`
	RIDs               []string               `json:"rids,omitempty"`
}

type SubscriptionCapabilities struct {
	Audio *AudioSubscriptionCapabilities `json:"audio,omitempty"`
	Video *VideoSubscriptionCapabilities `json:"video,omitempty"`
}

// PublicationCapabilities lists the codecs a remote endpoint accepts from
// publishers.
type PublicationCapabilities struct {
	Audio []AudioCodecParameters `json:"audio,omitempty"`
	Video []VideoCodecParameters `json:"video,omitempty"`
}

// AudioSubscriptionConstraints is the client's audio request. A nil Codecs
// slice means any codec.
type AudioSubscriptionConstraints struct {
	Codecs []AudioCodecParameters `json:"codecs,omitempty"`
}

// VideoSubscriptionConstraints is the client's video request. Nil fields
// mean "don't care". When RID is set every other field is ignored.
type VideoSubscriptionConstraints struct {
	Codecs            []VideoCodecParameters `json:"codecs,omitempty"`
	Resolution        *Resolution            `json:"resolution,omitempty"`
	FrameRate         *int                   `json:"frameRate,omitempty"`
	BitrateMultiplier *float64               `json:"bitrateMultiplier,omitempty"`
	KeyFrameInterval  *int                   `json:"keyFrameInterval,omitempty"`
	RID               *string                `json:"rid,omitempty"`
}

// CapabilitiesOf returns the full subscription menu of a remote stream: the
// parameters it was published with plus its extra capabilities.
func CapabilitiesOf(s *RemoteStream) SubscriptionCapabilities {
	settings := s.Settings()
	extra := s.ExtraCapabilities()

	var caps SubscriptionCapabilities

	var audio AudioSubscriptionCapabilities
	for _, a := range settings.Audio {
		if a.Codec != nil {
			audio.Codecs = appendAudioCodec(audio.Codecs, *a.Codec)
		}
	}
	if extra.Audio != nil {
		for _, c := range extra.Audio.Codecs {
			audio.Codecs = appendAudioCodec(audio.Codecs, c)
		}
	}
	if len(audio.Codecs) > 0 || len(settings.Audio) > 0 || extra.Audio != nil {
		caps.Audio = &audio
	}

	var video VideoSubscriptionCapabilities
	for _, v := range settings.Video {
		if v.Codec != nil {
			video.Codecs = appendVideoCodec(video.Codecs, *v.Codec)
		}
		if v.Resolution != nil {
			video.Resolutions = appendUnique(video.Resolutions, *v.Resolution)
		}
		if v.FrameRate != nil {
			video.FrameRates = appendUnique(video.FrameRates, *v.FrameRate)
		}
		if v.KeyFrameInterval != nil {
			video.KeyFrameIntervals = appendUnique(video.KeyFrameIntervals, *v.KeyFrameInterval)
		}
		if v.RID != nil {
			video.RIDs = appendUnique(video.RIDs, *v.RID)
		}
	}
	if extra.Video != nil {
		for _, c := range extra.Video.Codecs {
			video.Codecs = appendVideoCodec(video.Codecs, c)
		}
		for _, r := range extra.Video.Resolutions {
			video.Resolutions = appendUnique(video.Resolutions, r)
		}
		for _, f := range extra.Video.FrameRates {
			video.FrameRates = appendUnique(video.FrameRates, f)
		}
		for _, m := range extra.Video.BitrateMultipliers {
			video.BitrateMultipliers = appendUnique(video.BitrateMultipliers, m)
		}
		for _, k := range extra.Video.KeyFrameIntervals {
			video.KeyFrameIntervals = appendUnique(video.KeyFrameIntervals, k)
		}
		for _, rid := range extra.Video.RIDs {
			video.RIDs = appendUnique(video.RIDs, rid)
		}
	}
	if len(settings.Video) > 0 || extra.Video != nil {
		caps.Video = &video
	}

	return caps
}

func appendUnique[T comparable](list []T, v T) []T {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func appendAudioCodec(list []AudioCodecParameters, c AudioCodecParameters) []AudioCodecParameters {
	for _, x := range list {
		if x.Matches(c) && c.Matches(x) {
			return list
		}
	}
	return append(list, c)
}

func appendVideoCodec(list []VideoCodecParameters, c VideoCodecParameters) []VideoCodecParameters {
	for _, x := range list {
		if x.Matches(c) && c.Matches(x) {
			return list
		}
	}
	return append(list, c)
}
