package domain

import "time"

// TrackStats is the per-RTP-stream part of a stats report.
type TrackStats struct {
	SSRC        uint32
	Kind        string
	Packets     uint64
	Bytes       uint64
	PacketsLost int64
	Jitter      float64
}

// Stats is a transport statistics report for one session.
type Stats struct {
	Timestamp     time.Time
	BytesSent     uint64
	BytesReceived uint64
	Outbound      []TrackStats
	Inbound       []TrackStats
	RoundTripTime time.Duration
}
