package monitoring

import (
	"rillconf/internal/core/domain"
	apperrors "rillconf/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	sessionsActive      *prometheus.GaugeVec
	rosterParticipants  prometheus.Gauge
	rosterRemoteStreams prometheus.Gauge

	// Counters
	sessionsTotal       *prometheus.CounterVec
	sessionsEnded       *prometheus.CounterVec
	negotiationsTotal   *prometheus.CounterVec
	protocolErrorsTotal *prometheus.CounterVec
	muteTogglesTotal    *prometheus.CounterVec

	// Histograms
	signalingLatency *prometheus.HistogramVec
}

// NewPrometheusCollector registers the client metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rillconf_sessions_active",
			Help: "Number of live publications and subscriptions",
		}, []string{"kind"}),

		rosterParticipants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rillconf_roster_participants",
			Help: "Participants in the joined conference",
		}),

		rosterRemoteStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rillconf_roster_remote_streams",
			Help: "Remote streams in the joined conference",
		}),

		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rillconf_sessions_total",
			Help: "Total number of sessions created",
		}, []string{"kind"}),

		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rillconf_sessions_ended_total",
			Help: "Total number of sessions that reached a terminal state",
		}, []string{"kind", "outcome"}),

		negotiationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rillconf_negotiations_total",
			Help: "Negotiation attempts by outcome",
		}, []string{"kind", "result"}),

		protocolErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rillconf_protocol_errors_total",
			Help: "Out-of-contract notifications dropped",
		}, []string{"reason"}),

		muteTogglesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rillconf_mute_toggles_total",
			Help: "Successful mute and unmute operations",
		}, []string{"kind", "action"}),

		signalingLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rillconf_signaling_request_duration_seconds",
			Help:    "Round trip time of signaling requests",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method"}),
	}
}

func (p *PrometheusCollector) SessionStarted(kind domain.SessionKind) {
	p.sessionsTotal.WithLabelValues(string(kind)).Inc()
	p.sessionsActive.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) SessionEnded(kind domain.SessionKind, errored bool) {
	outcome := "ended"
	if errored {
		outcome = "errored"
	}
	p.sessionsActive.WithLabelValues(string(kind)).Dec()
	p.sessionsEnded.WithLabelValues(string(kind), outcome).Inc()
}

// NegotiationResult counts one negotiation by the error code it produced.
func (p *PrometheusCollector) NegotiationResult(kind domain.SessionKind, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if appErr := apperrors.GetAppError(err); appErr != nil {
			result = string(appErr.Code)
		}
	}
	p.negotiationsTotal.WithLabelValues(string(kind), result).Inc()
}

func (p *PrometheusCollector) ProtocolError(reason string) {
	p.protocolErrorsTotal.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) MuteToggled(kind domain.TrackKind, muted bool) {
	action := "unmute"
	if muted {
		action = "mute"
	}
	p.muteTogglesTotal.WithLabelValues(string(kind), action).Inc()
}

func (p *PrometheusCollector) RosterChanged(participants, streams int) {
	p.rosterParticipants.Set(float64(participants))
	p.rosterRemoteStreams.Set(float64(streams))
}

// ObserveSignaling records the duration of one signaling request.
func (p *PrometheusCollector) ObserveSignaling(method string, seconds float64) {
	p.signalingLatency.WithLabelValues(method).Observe(seconds)
}
