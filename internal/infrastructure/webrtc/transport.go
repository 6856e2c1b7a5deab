// Package webrtc attaches publications and subscriptions to pion peer
// connections. Offer/answer exchange is delegated to an SDPExchanger; ICE
// and DTLS are left to pion.
package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	apperrors "rillconf/pkg/errors"
	"rillconf/pkg/tracing"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// SDPExchanger sends a local offer for a session and returns the remote
// answer.
type SDPExchanger interface {
	ExchangeSDP(ctx context.Context, id domain.SessionID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}

type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// GatherTimeout bounds ICE gathering before the offer is sent anyway.
	GatherTimeout time.Duration
}

// TransportFactory creates one peer connection per session. Only direct
// WebRTC grants are supported.
type TransportFactory struct {
	config    Config
	api       *webrtc.API
	exchanger SDPExchanger
	logger    *zap.SugaredLogger
}

var _ ports.TransportFactory = (*TransportFactory)(nil)

// NewTransportFactory builds the pion API once. A nil exchanger leaves
// connections unnegotiated, which is enough for local inspection and tests.
func NewTransportFactory(config Config, exchanger SDPExchanger, logger *zap.SugaredLogger) (*TransportFactory, error) {
	media := &webrtc.MediaEngine{}
	if err := registerCodecs(media); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if config.PortRange.Min > 0 && config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(config.PortRange.Min, config.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}
	if config.GatherTimeout <= 0 {
		config.GatherTimeout = 2 * time.Second
	}

	return &TransportFactory{
		config:    config,
		api:       webrtc.NewAPI(webrtc.WithMediaEngine(media), webrtc.WithSettingEngine(settingEngine)),
		exchanger: exchanger,
		logger:    logger,
	}, nil
}

func (f *TransportFactory) AttachPublication(ctx context.Context, grant domain.SessionGrant, stream *domain.LocalStream, settings domain.PublicationSettings) (ports.TransportHandle, error) {
	if err := checkDirect(grant); err != nil {
		return nil, err
	}
	media, ok := stream.Media().(*LocalMedia)
	if !ok {
		return nil, apperrors.NewValidationError("stream media %T cannot be sent over webrtc", stream.Media())
	}

	pc, err := f.newPeerConnection(grant.ID)
	if err != nil {
		return nil, err
	}
	h := newPeerHandle(grant.ID, pc, media, f.logger)

	if media.Audio != nil {
		tr, err := pc.AddTransceiverFromTrack(media.Audio, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly})
		if err != nil {
			return nil, h.fail(err, "add audio track")
		}
		if err := preferCodecs(tr, audioPreferences(audioCodecs(settings))); err != nil {
			return nil, h.fail(err, "set audio codec preferences")
		}
		h.senders[webrtc.RTPCodecTypeAudio] = sender{rtp: tr.Sender(), track: media.Audio}
	}
	if media.Video != nil {
		tr, err := pc.AddTransceiverFromTrack(media.Video, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly})
		if err != nil {
			return nil, h.fail(err, "add video track")
		}
		if err := preferCodecs(tr, videoPreferences(videoCodecs(settings))); err != nil {
			return nil, h.fail(err, "set video codec preferences")
		}
		h.senders[webrtc.RTPCodecTypeVideo] = sender{rtp: tr.Sender(), track: media.Video}
		go h.drainRTCP(tr.Sender())
	}

	if err := f.negotiate(ctx, grant.ID, pc); err != nil {
		return nil, h.fail(err, "negotiate publication")
	}
	return h, nil
}

func (f *TransportFactory) AttachSubscription(ctx context.Context, grant domain.SessionGrant, resolved domain.ResolvedSubscription) (ports.TransportHandle, error) {
	if err := checkDirect(grant); err != nil {
		return nil, err
	}

	pc, err := f.newPeerConnection(grant.ID)
	if err != nil {
		return nil, err
	}
	remote := newRemoteMedia(resolved)
	h := newPeerHandle(grant.ID, pc, remote, f.logger)
	h.remote = remote

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		f.logger.Infow("remote track started",
			"session_id", grant.ID,
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			h.setVideoSSRC(uint32(track.SSRC()))
		}
		go remote.consume(track, f.logger)
	})

	if resolved.Audio != nil {
		tr, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
		if err != nil {
			return nil, h.fail(err, "add audio transceiver")
		}
		if err := preferCodecs(tr, audioPreferences(resolved.Audio.Codecs)); err != nil {
			return nil, h.fail(err, "set audio codec preferences")
		}
	}
	if resolved.Video != nil {
		tr, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
		if err != nil {
			return nil, h.fail(err, "add video transceiver")
		}
		if err := preferCodecs(tr, videoPreferences(resolved.Video.Codecs)); err != nil {
			return nil, h.fail(err, "set video codec preferences")
		}
	}

	if err := f.negotiate(ctx, grant.ID, pc); err != nil {
		return nil, h.fail(err, "negotiate subscription")
	}
	return h, nil
}

func (f *TransportFactory) newPeerConnection(id domain.SessionID) (*webrtc.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   f.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	})
	if err != nil {
		return nil, apperrors.NewTransportError(err, "create peer connection")
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		f.logger.Infow("peer connection state changed",
			"session_id", id,
			"connection_state", state.String(),
		)
	})
	return pc, nil
}

func (f *TransportFactory) negotiate(ctx context.Context, id domain.SessionID, pc *webrtc.PeerConnection) error {
	if f.exchanger == nil {
		return nil
	}

	ctx, span := tracing.TraceTransport(ctx, "negotiate", string(id))
	defer span.End()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}

	timer := time.NewTimer(f.config.GatherTimeout)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		f.logger.Debugw("ICE gathering incomplete, sending partial offer", "session_id", id)
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := f.exchanger.ExchangeSDP(ctx, id, *pc.LocalDescription())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return pc.SetRemoteDescription(answer)
}

func checkDirect(grant domain.SessionGrant) error {
	if grant.Transport.Type != domain.TransportTypeWebRTC {
		return apperrors.NewTransportError(
			fmt.Errorf("transport type %q is not supported", grant.Transport.Type), "attach transport")
	}
	return nil
}

func preferCodecs(tr *webrtc.RTPTransceiver, prefs []webrtc.RTPCodecParameters) error {
	if len(prefs) == 0 {
		return nil
	}
	return tr.SetCodecPreferences(prefs)
}

func audioCodecs(settings domain.PublicationSettings) []domain.AudioCodecParameters {
	var out []domain.AudioCodecParameters
	for _, a := range settings.Audio {
		if a.Codec != nil {
			out = append(out, *a.Codec)
		}
	}
	return out
}

func videoCodecs(settings domain.PublicationSettings) []domain.VideoCodecParameters {
	var out []domain.VideoCodecParameters
	for _, v := range settings.Video {
		if v.Codec != nil {
			out = append(out, *v.Codec)
		}
	}
	return out
}

type sender struct {
	rtp   *webrtc.RTPSender
	track webrtc.TrackLocal
}

// peerHandle is the TransportHandle of one session.
type peerHandle struct {
	id     domain.SessionID
	pc     *webrtc.PeerConnection
	media  domain.Media
	remote *RemoteMedia
	logger *zap.SugaredLogger

	mu        sync.Mutex
	senders   map[webrtc.RTPCodecType]sender
	videoSSRC uint32
	closed    bool
}

func newPeerHandle(id domain.SessionID, pc *webrtc.PeerConnection, media domain.Media, logger *zap.SugaredLogger) *peerHandle {
	return &peerHandle{
		id:      id,
		pc:      pc,
		media:   media,
		logger:  logger,
		senders: make(map[webrtc.RTPCodecType]sender),
	}
}

func (h *peerHandle) Media() domain.Media { return h.media }

func (h *peerHandle) GetStats(ctx context.Context) (*domain.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("peer connection closed")
	}
	return convertStats(h.pc.GetStats(), time.Now()), nil
}

// SetMuted pauses sending by detaching the local track from its sender,
// and resumes by attaching it again. Subscriptions drop received packets
// while muted and ask for a key frame when video resumes.
func (h *peerHandle) SetMuted(kind domain.TrackKind, muted bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("peer connection closed")
	}

	if h.remote != nil {
		h.remote.setMuted(kind, muted)
		if !muted && kind.IncludesVideo() && h.videoSSRC != 0 {
			return h.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: h.videoSSRC}})
		}
		return nil
	}

	for _, k := range kinds(kind) {
		s, ok := h.senders[k]
		if !ok {
			continue
		}
		var track webrtc.TrackLocal
		if !muted {
			track = s.track
		}
		if err := s.rtp.ReplaceTrack(track); err != nil {
			return err
		}
	}
	return nil
}

func (h *peerHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.pc.Close()
}

func (h *peerHandle) setVideoSSRC(ssrc uint32) {
	h.mu.Lock()
	h.videoSSRC = ssrc
	h.mu.Unlock()
}

// drainRTCP reads sender RTCP so interceptors keep working; PLIs from the
// remote side are logged.
func (h *peerHandle) drainRTCP(s *webrtc.RTPSender) {
	for {
		packets, _, err := s.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			if _, ok := p.(*rtcp.PictureLossIndication); ok {
				h.logger.Debugw("key frame requested by remote", "session_id", h.id)
			}
		}
	}
}

func (h *peerHandle) fail(err error, op string) error {
	if cerr := h.Close(); cerr != nil {
		h.logger.Warnw("failed to close peer connection", "session_id", h.id, "error", cerr)
	}
	return apperrors.NewTransportError(err, op)
}

func kinds(kind domain.TrackKind) []webrtc.RTPCodecType {
	var out []webrtc.RTPCodecType
	if kind.IncludesAudio() {
		out = append(out, webrtc.RTPCodecTypeAudio)
	}
	if kind.IncludesVideo() {
		out = append(out, webrtc.RTPCodecTypeVideo)
	}
	return out
}
