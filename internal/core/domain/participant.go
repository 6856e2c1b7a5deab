package domain

type ParticipantID string

type UserID string

// Role is the role a participant was granted when joining, e.g. "presenter".
type Role string

const (
	RolePresenter Role = "presenter"
	RoleViewer    Role = "viewer"
	RoleGuest     Role = "guest"
)

// Participant is a member of one conference. Its ID is scoped to that
// conference; UserID is stable across conferences.
type Participant struct {
	id     ParticipantID
	role   Role
	userID UserID
}

func NewParticipant(id ParticipantID, role Role, userID UserID) Participant {
	return Participant{id: id, role: role, userID: userID}
}

func (p Participant) ID() ParticipantID { return p.id }
func (p Participant) Role() Role         { return p.role }
func (p Participant) UserID() UserID     { return p.userID }
