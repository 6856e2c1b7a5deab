package webrtc

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"rillconf/internal/core/domain"
	"rillconf/pkg/optimize"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// LocalMedia wraps the pion tracks an application captured. Either track
// may be nil.
type LocalMedia struct {
	Audio webrtc.TrackLocal
	Video webrtc.TrackLocal
}

func NewLocalMedia(audio, video webrtc.TrackLocal) *LocalMedia {
	return &LocalMedia{Audio: audio, Video: video}
}

func (m *LocalMedia) HasAudio() bool { return m.Audio != nil }
func (m *LocalMedia) HasVideo() bool { return m.Video != nil }

// RemoteMedia collects what a subscription receives. Tracks arrive
// asynchronously through OnTrack; HasAudio and HasVideo report what the
// subscription asked for so the stream is usable before the first packet.
type RemoteMedia struct {
	wantAudio bool
	wantVideo bool

	mu    sync.RWMutex
	audio *webrtc.TrackRemote
	video *webrtc.TrackRemote

	audioPackets atomic.Uint64
	videoPackets atomic.Uint64
	audioBytes   atomic.Uint64
	videoBytes   atomic.Uint64
	keyFrames    atomic.Uint64

	audioMuted atomic.Bool
	videoMuted atomic.Bool
}

func newRemoteMedia(resolved domain.ResolvedSubscription) *RemoteMedia {
	return &RemoteMedia{
		wantAudio: resolved.Audio != nil,
		wantVideo: resolved.Video != nil,
	}
}

func (m *RemoteMedia) HasAudio() bool { return m.wantAudio }
func (m *RemoteMedia) HasVideo() bool { return m.wantVideo }

// AudioTrack is nil until the remote audio track arrives.
func (m *RemoteMedia) AudioTrack() *webrtc.TrackRemote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.audio
}

func (m *RemoteMedia) VideoTrack() *webrtc.TrackRemote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.video
}

// Packets returns the RTP packets accepted so far per kind. Packets that
// arrive while a kind is muted are dropped and not counted.
func (m *RemoteMedia) Packets() (audio, video uint64) {
	return m.audioPackets.Load(), m.videoPackets.Load()
}

// KeyFrames counts video packets that start a key frame.
func (m *RemoteMedia) KeyFrames() uint64 {
	return m.keyFrames.Load()
}

func (m *RemoteMedia) setMuted(kind domain.TrackKind, muted bool) {
	if kind.IncludesAudio() {
		m.audioMuted.Store(muted)
	}
	if kind.IncludesVideo() {
		m.videoMuted.Store(muted)
	}
}

func (m *RemoteMedia) attach(track *webrtc.TrackRemote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		m.audio = track
	} else {
		m.video = track
	}
}

// account records one received packet and reports whether it should be
// delivered.
func (m *RemoteMedia) account(kind webrtc.RTPCodecType, mime string, pkt *rtp.Packet, size int) bool {
	if kind == webrtc.RTPCodecTypeAudio {
		if m.audioMuted.Load() {
			return false
		}
		m.audioPackets.Add(1)
		m.audioBytes.Add(uint64(size))
		return true
	}
	if m.videoMuted.Load() {
		return false
	}
	m.videoPackets.Add(1)
	m.videoBytes.Add(uint64(size))
	if isKeyFrame(mime, pkt.Payload) {
		m.keyFrames.Add(1)
	}
	return true
}

// rtpBuffers holds read buffers sized for one RTP packet on a standard MTU.
var rtpBuffers = optimize.NewBytePool(1500)

// consume reads track until it ends. The track is drained even while muted
// so the receiver's buffers never fill up.
func (m *RemoteMedia) consume(track *webrtc.TrackRemote, logger *zap.SugaredLogger) {
	m.attach(track)

	mime := track.Codec().MimeType
	buf := rtpBuffers.Get()
	defer rtpBuffers.Put(buf)
	pkt := &rtp.Packet{}
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debugw("remote track read stopped", "kind", track.Kind().String(), "error", err)
			}
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			logger.Debugw("dropping malformed RTP packet", "kind", track.Kind().String(), "error", err)
			continue
		}
		m.account(track.Kind(), mime, pkt, n)
	}
}

// isKeyFrame inspects the first bytes of a payload for the codecs whose
// key frames can be spotted without depacketizing.
func isKeyFrame(mime string, payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		// Skip the VP8 payload descriptor, then check the P bit of the
		// frame header on the first partition.
		desc := payload[0]
		if desc&0x10 == 0 {
			return false
		}
		i := 1
		if desc&0x80 != 0 {
			if len(payload) < 2 {
				return false
			}
			ext := payload[1]
			i++
			if ext&0x80 != 0 {
				if len(payload) <= i {
					return false
				}
				if payload[i]&0x80 != 0 {
					i++
				}
				i++
			}
			if ext&0x40 != 0 {
				i++
			}
			if ext&0x30 != 0 {
				i++
			}
		}
		return len(payload) > i && payload[i]&0x01 == 0
	case strings.EqualFold(mime, webrtc.MimeTypeH264):
		nal := payload[0] & 0x1F
		switch nal {
		case 5, 7:
			return true
		case 24: // STAP-A
			return len(payload) > 3 && payload[3]&0x1F == 7
		case 28: // FU-A start of IDR
			return len(payload) > 1 && payload[1]&0x80 != 0 && payload[1]&0x1F == 5
		}
	}
	return false
}
