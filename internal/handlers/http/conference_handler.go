package http

import (
	"errors"
	"net/http"
	"sort"

	"rillconf/internal/core/domain"
	"rillconf/internal/core/ports"
	"rillconf/internal/core/services"
	"rillconf/internal/core/session"
	apperrors "rillconf/pkg/errors"
	"rillconf/pkg/validation"

	"github.com/gin-gonic/gin"
)

// ConferenceHandler serves the read-only inspection API. Failures are
// attached to the gin context and rendered by the error middleware.
type ConferenceHandler struct {
	conference *services.ConferenceService
	rosters    ports.RosterRepository
}

func NewConferenceHandler(conference *services.ConferenceService, rosters ports.RosterRepository) *ConferenceHandler {
	return &ConferenceHandler{conference: conference, rosters: rosters}
}

func (h *ConferenceHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.GET("/conference", h.GetConference)
		api.GET("/conference/streams/:id", h.GetStream)
		api.GET("/rosters/:id", h.GetStoredRoster)
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", h.GetSession)
		api.GET("/sessions/:id/stats", h.GetSessionStats)
	}
}

type participantView struct {
	ID     domain.ParticipantID `json:"id"`
	Role   domain.Role          `json:"role"`
	UserID domain.UserID        `json:"user_id"`
}

type streamView struct {
	ID         domain.StreamID            `json:"id"`
	Origin     domain.ParticipantID       `json:"origin"`
	Source     domain.StreamSourceInfo    `json:"source"`
	Attributes map[string]string          `json:"attributes,omitempty"`
	Settings   domain.PublicationSettings `json:"settings"`
	Ended      bool                       `json:"ended"`
}

type sessionView struct {
	ID        domain.SessionID         `json:"id"`
	Kind      domain.SessionKind       `json:"kind"`
	State     session.State            `json:"state"`
	Transport domain.TransportSettings `json:"transport"`
	Muted     struct {
		Audio bool `json:"audio"`
		Video bool `json:"video"`
	} `json:"muted"`
	StreamID domain.StreamID `json:"stream_id,omitempty"`
}

func newParticipantView(p domain.Participant) participantView {
	return participantView{ID: p.ID(), Role: p.Role(), UserID: p.UserID()}
}

func newStreamView(s *domain.RemoteStream) streamView {
	return streamView{
		ID:         s.ID(),
		Origin:     s.Origin(),
		Source:     s.Source(),
		Attributes: s.Attributes(),
		Settings:   s.Settings(),
		Ended:      s.Ended(),
	}
}

func newSessionView(s services.Session) sessionView {
	v := sessionView{
		ID:        s.ID(),
		State:     s.State(),
		Transport: s.Transport(),
	}
	v.Muted.Audio = s.Muted(domain.TrackKindAudio)
	v.Muted.Video = s.Muted(domain.TrackKindVideo)

	switch t := s.(type) {
	case *session.Publication:
		v.Kind = domain.SessionKindPublication
		v.StreamID = t.Stream().ID()
	case *session.Subscription:
		v.Kind = domain.SessionKindSubscription
		if src := t.Source(); src != nil {
			v.StreamID = src.ID()
		}
	}
	return v
}

func (h *ConferenceHandler) GetConference(c *gin.Context) {
	info := h.conference.Roster().Info()
	if info.ID == "" {
		_ = c.Error(apperrors.NewNotFoundError("conference"))
		return
	}

	participants := make([]participantView, 0, len(info.Participants))
	for _, p := range info.Participants {
		participants = append(participants, newParticipantView(p))
	}
	streams := make([]streamView, 0, len(info.RemoteStreams))
	for _, s := range info.RemoteStreams {
		streams = append(streams, newStreamView(s))
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           info.ID,
		"self":         newParticipantView(info.Self),
		"participants": participants,
		"streams":      streams,
	})
}

func (h *ConferenceHandler) GetStream(c *gin.Context) {
	id, ok := pathID(c, "stream id")
	if !ok {
		return
	}
	stream, err := h.conference.Roster().RemoteStream(domain.StreamID(id))
	if err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeNotFound, "stream not found", http.StatusNotFound))
		return
	}
	c.JSON(http.StatusOK, newStreamView(stream))
}

// GetStoredRoster returns the last snapshot persisted for a conference,
// which may outlive the live roster.
func (h *ConferenceHandler) GetStoredRoster(c *gin.Context) {
	id, ok := pathID(c, "conference id")
	if !ok {
		return
	}
	snapshot, err := h.rosters.Load(c.Request.Context(), domain.ConferenceID(id))
	if err != nil {
		if errors.Is(err, domain.ErrConferenceNotFound) {
			_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeNotFound, "roster not found", http.StatusNotFound))
			return
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *ConferenceHandler) ListSessions(c *gin.Context) {
	views := make([]sessionView, 0)
	for _, p := range h.conference.Publications() {
		views = append(views, newSessionView(p))
	}
	for _, s := range h.conference.Subscriptions() {
		views = append(views, newSessionView(s))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (h *ConferenceHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSessionView(s))
}

func (h *ConferenceHandler) GetSessionStats(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	stats, err := s.GetStats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ConferenceHandler) session(c *gin.Context) (services.Session, bool) {
	id, ok := pathID(c, "session id")
	if !ok {
		return nil, false
	}
	s, err := h.conference.Session(domain.SessionID(id))
	if err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeNotFound, "session not found", http.StatusNotFound))
		return nil, false
	}
	return s, true
}

func pathID(c *gin.Context, field string) (string, bool) {
	id := c.Param("id")
	if err := validation.ValidateID(id, field); err != nil {
		_ = c.Error(apperrors.NewValidationError("%s", err.Error()))
		return "", false
	}
	return id, true
}
