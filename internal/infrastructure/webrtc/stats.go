package webrtc

import (
	"sort"
	"time"

	"rillconf/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// convertStats flattens a pion stats report into the session stats shape.
// Byte totals come from the transport entry when present and are summed
// from the RTP streams otherwise.
func convertStats(report webrtc.StatsReport, now time.Time) *domain.Stats {
	stats := &domain.Stats{Timestamp: now}

	var transportSeen bool
	var rtpSent, rtpReceived uint64
	for _, s := range report {
		switch v := s.(type) {
		case webrtc.OutboundRTPStreamStats:
			stats.Outbound = append(stats.Outbound, domain.TrackStats{
				SSRC:    uint32(v.SSRC),
				Kind:    v.Kind,
				Packets: uint64(v.PacketsSent),
				Bytes:   v.BytesSent,
			})
			rtpSent += v.BytesSent
		case webrtc.InboundRTPStreamStats:
			stats.Inbound = append(stats.Inbound, domain.TrackStats{
				SSRC:        uint32(v.SSRC),
				Kind:        v.Kind,
				Packets:     uint64(v.PacketsReceived),
				Bytes:       v.BytesReceived,
				PacketsLost: int64(v.PacketsLost),
				Jitter:      v.Jitter,
			})
			rtpReceived += v.BytesReceived
		case webrtc.TransportStats:
			transportSeen = true
			stats.BytesSent += v.BytesSent
			stats.BytesReceived += v.BytesReceived
		case webrtc.ICECandidatePairStats:
			if v.Nominated && v.CurrentRoundTripTime > 0 {
				stats.RoundTripTime = time.Duration(v.CurrentRoundTripTime * float64(time.Second))
			}
		}
	}

	if !transportSeen {
		stats.BytesSent = rtpSent
		stats.BytesReceived = rtpReceived
	}

	sort.Slice(stats.Outbound, func(i, j int) bool { return stats.Outbound[i].SSRC < stats.Outbound[j].SSRC })
	sort.Slice(stats.Inbound, func(i, j int) bool { return stats.Inbound[i].SSRC < stats.Inbound[j].SSRC })
	return stats
}
