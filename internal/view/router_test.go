package view

import (
	"testing"

	"github.com/drfirst/clinical-intel/internal/domain/session"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		role session.Role
		want ID
	}{
		{session.RoleNone, Landing},
		{session.RoleAdmin, Admin},
		{session.RoleDoctor, Doctor},
		{session.Role("nurse"), Landing},
	}
	for _, tt := range tests {
		if got := Select(tt.role); got != tt.want {
			t.Errorf("Select(%q) = %s, want %s", tt.role, got, tt.want)
		}
	}
}

func TestSelectFollowsSessionTransitions(t *testing.T) {
	s := session.New()
	if Select(s.Role) != Landing {
		t.Fatal("new session should land on the login page")
	}

	s, _, err := session.Apply(s, session.Login("admin", "admin"), nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if Select(s.Role) != Admin {
		t.Errorf("admin login should select admin view")
	}

	s, _, _ = session.Apply(s, session.Logout(), nil)
	if Select(s.Role) != Landing {
		t.Errorf("logout should return to landing")
	}

	s, _, _ = session.Apply(s, session.Login("doctor", "doctor"), nil)
	if Select(s.Role) != Doctor {
		t.Errorf("doctor login should select doctor view")
	}

	s, _, _ = session.Apply(s, session.Login("doctor", "wrong"), nil)
	if Select(s.Role) != Doctor {
		t.Errorf("failed login must not change the view")
	}
}
