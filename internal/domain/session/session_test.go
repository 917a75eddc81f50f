package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestLoginAcceptsOnlyDemoPairs(t *testing.T) {
	auth := NewAuthenticator()

	tests := []struct {
		username, password string
		want               Role
		wantErr            bool
	}{
		{"admin", "admin", RoleAdmin, false},
		{"doctor", "doctor", RoleDoctor, false},
		{"admin", "doctor", RoleNone, true},
		{"doctor", "admin", RoleNone, true},
		{"Admin", "admin", RoleNone, true},
		{"admin", "admin ", RoleNone, true},
		{"", "", RoleNone, true},
		{"nurse", "nurse", RoleNone, true},
	}

	for _, tt := range tests {
		s := New()
		next, event, err := Apply(s, Login(tt.username, tt.password), auth)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("login(%q, %q) err = %v, want ErrInvalidCredentials", tt.username, tt.password, err)
			}
			if next != s {
				t.Errorf("login(%q, %q) changed the session", tt.username, tt.password)
			}
			if event == nil || event.EventType != EventLoginRejected {
				t.Errorf("login(%q, %q) event = %+v, want LoginRejected", tt.username, tt.password, event)
			}
			continue
		}
		if err != nil {
			t.Fatalf("login(%q, %q): %v", tt.username, tt.password, err)
		}
		if next.Role != tt.want {
			t.Errorf("login(%q, %q) role = %s, want %s", tt.username, tt.password, next.Role, tt.want)
		}
		if event.EventType != EventLoggedIn || event.From != RoleNone || event.To != tt.want {
			t.Errorf("unexpected event %+v", event)
		}
	}
}

func TestLogoutReturnsToUnset(t *testing.T) {
	auth := NewAuthenticator()
	for _, pair := range [][2]string{{"admin", "admin"}, {"doctor", "doctor"}} {
		s, _, err := Apply(New(), Login(pair[0], pair[1]), auth)
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		out, event, err := Apply(s, Logout(), auth)
		if err != nil {
			t.Fatalf("logout: %v", err)
		}
		if out.Role != RoleNone || out.PatientID != "" {
			t.Errorf("after logout role=%s patient=%q", out.Role, out.PatientID)
		}
		if event.From != s.Role || event.To != RoleNone {
			t.Errorf("logout event = %+v", event)
		}
	}

	// Logout from unset is allowed and stays unset.
	out, _, err := Apply(New(), Logout(), auth)
	if err != nil || out.Role != RoleNone {
		t.Errorf("logout from unset: role=%s err=%v", out.Role, err)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := New()
	before := s
	next, _, err := Apply(s, Login("admin", "admin"), nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if s != before {
		t.Error("input session was modified")
	}
	if next.Version != s.Version+1 {
		t.Errorf("version = %d, want %d", next.Version, s.Version+1)
	}
}

func TestSelectPatientRequiresDoctor(t *testing.T) {
	auth := NewAuthenticator()

	if _, _, err := Apply(New(), SelectPatient("p1"), auth); !errors.Is(err, ErrForbidden) {
		t.Errorf("unset select err = %v, want ErrForbidden", err)
	}

	admin, _, _ := Apply(New(), Login("admin", "admin"), auth)
	if _, _, err := Apply(admin, SelectPatient("p1"), auth); !errors.Is(err, ErrForbidden) {
		t.Errorf("admin select err = %v, want ErrForbidden", err)
	}

	doctor, _, _ := Apply(New(), Login("doctor", "doctor"), auth)
	next, event, err := Apply(doctor, SelectPatient("p1"), auth)
	if err != nil {
		t.Fatalf("doctor select: %v", err)
	}
	if next.PatientID != "p1" || event.PatientID != "p1" {
		t.Errorf("patient = %q, event patient = %q", next.PatientID, event.PatientID)
	}
}

func TestReloginReplacesRole(t *testing.T) {
	auth := NewAuthenticator()
	s, _, _ := Apply(New(), Login("admin", "admin"), auth)
	s, _, err := Apply(s, Login("doctor", "doctor"), auth)
	if err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if s.Role != RoleDoctor {
		t.Errorf("role = %s, want doctor", s.Role)
	}
}

func TestUnknownAction(t *testing.T) {
	if _, _, err := Apply(New(), Action{Type: "dance"}, nil); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	s := New()
	s.UpdatedAt = now
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, err := store.Get(ctx, s.ID); err != nil || got.ID != s.ID {
		t.Fatalf("Get: %v", err)
	}

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired Get err = %v, want ErrNotFound", err)
	}
	if store.Len() != 0 {
		t.Errorf("expired session not evicted")
	}
}

func TestMemoryStoreSweepDropsExpired(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5000; i++ {
		if err := store.Save(ctx, New()); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	live := New()
	store.now = func() time.Time { return now.Add(time.Second) }
	_ = store.Save(ctx, live)

	if removed := store.Sweep(); removed != 5000 {
		t.Errorf("Sweep removed %d, want 5000", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d after sweep, want 1", store.Len())
	}
	if _, err := store.Get(ctx, live.ID); err != nil {
		t.Errorf("live session swept: %v", err)
	}
}

func TestMemoryStoreRunSweeps(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 100; i++ {
		_ = store.Save(ctx, New())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Run(ctx, 5*time.Millisecond, nil)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, janitor did not sweep", store.Len())
	}
	cancel()
	<-done
}

func TestMemoryStoreTouchSlidesExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	s := New()
	_ = store.Save(ctx, s)

	store.now = func() time.Time { return now.Add(50 * time.Second) }
	if err := store.Touch(ctx, s.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	store.now = func() time.Time { return now.Add(100 * time.Second) }
	if _, err := store.Get(ctx, s.ID); err != nil {
		t.Errorf("touched session expired: %v", err)
	}
	store.now = func() time.Time { return now.Add(200 * time.Second) }
	if err := store.Touch(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Touch of expired session err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	s := New()
	_ = store.Save(ctx, s)
	_ = store.Delete(ctx, s.ID)
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := store.Save(ctx, Session{}); err == nil {
		t.Error("saving a session without id should fail")
	}
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	s := New()

	tok, expires, err := tokens.Issue(s)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Error("expiry should be in the future")
	}
	id, parsedExpiry, err := tokens.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id != s.ID {
		t.Errorf("id = %q, want %q", id, s.ID)
	}
	if !parsedExpiry.Equal(expires.Truncate(time.Second)) {
		t.Errorf("parsed expiry = %v, want %v", parsedExpiry, expires.Truncate(time.Second))
	}

	other := NewTokens("other-secret", time.Hour)
	if _, _, err := other.Parse(tok); err == nil {
		t.Error("token signed with another secret should be rejected")
	}
	if _, _, err := tokens.Parse(tok + "x"); err == nil {
		t.Error("tampered token should be rejected")
	}

	expired := NewTokens("test-secret", -time.Minute)
	old, _, err := expired.Issue(s)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, _, err := tokens.Parse(old); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	store, err := NewRedisStore(url, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	s, _, _ := Apply(New(), Login("doctor", "doctor"), nil)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Role != RoleDoctor {
		t.Errorf("role = %s, want doctor", got.Role)
	}
	if err := store.Touch(ctx, s.ID); err != nil {
		t.Errorf("Touch: %v", err)
	}
	if err := store.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := store.Touch(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Touch of deleted session err = %v, want ErrNotFound", err)
	}
}
