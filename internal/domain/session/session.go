package session

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role is the authenticated identity class of a session
type Role string

const (
	RoleNone   Role = ""
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
)

// Valid reports whether r is one of the three legal roles
func (r Role) Valid() bool {
	return r == RoleNone || r == RoleAdmin || r == RoleDoctor
}

// Authenticated reports whether r is admin or doctor
func (r Role) Authenticated() bool {
	return r == RoleAdmin || r == RoleDoctor
}

func (r Role) String() string {
	if r == RoleNone {
		return "unset"
	}
	return string(r)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("action not permitted for role")
	ErrNotFound           = errors.New("session not found")
	ErrUnknownAction      = errors.New("unknown session action")
)

// Session is the state of one client. Values are treated as immutable:
// Apply returns a new Session and never modifies its input.
type Session struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	PatientID string    `json:"patient_id,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New starts an unauthenticated session
func New() Session {
	now := time.Now().UTC()
	return Session{
		ID:        uuid.New().String(),
		Role:      RoleNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Started returns the event recorded when a session is first created
func Started(s Session) *Event {
	return NewEvent(s, EventSessionStarted, RoleNone)
}

// ActionType identifies a session action
type ActionType string

const (
	ActionLogin         ActionType = "login"
	ActionLogout        ActionType = "logout"
	ActionSelectPatient ActionType = "select_patient"
)

// Action is a user interaction that may change the session
type Action struct {
	Type      ActionType
	Username  string
	Password  string
	PatientID string
}

// Login builds a login action
func Login(username, password string) Action {
	return Action{Type: ActionLogin, Username: username, Password: password}
}

// Logout builds a logout action
func Logout() Action {
	return Action{Type: ActionLogout}
}

// SelectPatient builds a patient selection action
func SelectPatient(patientID string) Action {
	return Action{Type: ActionSelectPatient, PatientID: patientID}
}

// Apply runs action a against s.
//
// A rejected login returns s unchanged together with ErrInvalidCredentials
// and a LoginRejected event. Logout always succeeds and returns to the unset
// role from any state.
func Apply(s Session, a Action, auth *Authenticator) (Session, *Event, error) {
	from := s.Role
	next := s
	next.UpdatedAt = time.Now().UTC()

	switch a.Type {
	case ActionLogin:
		role, err := auth.Authenticate(a.Username, a.Password)
		if err != nil {
			rejected := NewEvent(s, EventLoginRejected, from).WithUsername(a.Username)
			rejected.Timestamp = next.UpdatedAt
			return s, rejected, err
		}
		next.Role = role
		next.PatientID = ""
		next.Version++
		return next, NewEvent(next, EventLoggedIn, from).WithUsername(a.Username), nil

	case ActionLogout:
		next.Role = RoleNone
		next.PatientID = ""
		next.Version++
		return next, NewEvent(next, EventLoggedOut, from), nil

	case ActionSelectPatient:
		if s.Role != RoleDoctor {
			return s, nil, ErrForbidden
		}
		next.PatientID = a.PatientID
		next.Version++
		return next, NewEvent(next, EventPatientSelected, from), nil
	}

	return s, nil, ErrUnknownAction
}

// Credential is one accepted username/password pair
type Credential struct {
	Username string
	Password string
	Role     Role
}

// DefaultCredentials returns the two demo accounts
func DefaultCredentials() []Credential {
	return []Credential{
		{Username: "admin", Password: "admin", Role: RoleAdmin},
		{Username: "doctor", Password: "doctor", Role: RoleDoctor},
	}
}

// Authenticator checks credential pairs
type Authenticator struct {
	credentials []Credential
}

// NewAuthenticator creates an authenticator. No credentials means the demo
// accounts.
func NewAuthenticator(creds ...Credential) *Authenticator {
	if len(creds) == 0 {
		creds = DefaultCredentials()
	}
	return &Authenticator{credentials: creds}
}

// Authenticate returns the role for a matching pair
func (a *Authenticator) Authenticate(username, password string) (Role, error) {
	if a == nil {
		a = NewAuthenticator()
	}
	for _, c := range a.credentials {
		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
		if userOK && passOK {
			return c.Role, nil
		}
	}
	return RoleNone, ErrInvalidCredentials
}
