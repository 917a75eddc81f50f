package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/domain/session"
)

// CookieName carries the signed session token
const CookieName = "ci_session"

// sessionHolder lets handlers replace the request's session after a
// transition while outer middleware keeps reading it. fresh marks a session
// that has not been persisted yet.
type sessionHolder struct {
	mu    sync.Mutex
	sess  session.Session
	fresh bool
}

func (h *sessionHolder) get() session.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess
}

// set replaces the session and reports whether it was the first persist
func (h *sessionHolder) set(s session.Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sess = s
	first := h.fresh
	h.fresh = false
	return first
}

// CurrentSession returns the session attached by Sessions.Middleware. It is
// the unset session when none is attached.
func CurrentSession(ctx context.Context) session.Session {
	if h, ok := ctx.Value(SessionKey).(*sessionHolder); ok {
		return h.get()
	}
	return session.Session{}
}

// Sessions binds each request to its own session: a signed cookie names the
// session and the store holds its state.
type Sessions struct {
	store  session.Store
	tokens *session.Tokens
	logger *zap.Logger
	secure bool
}

// NewSessions creates the session middleware. secure marks cookies
// HTTPS-only.
func NewSessions(store session.Store, tokens *session.Tokens, logger *zap.Logger, secure bool) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{store: store, tokens: tokens, logger: logger, secure: secure}
}

type cookieState int

const (
	cookieMissing cookieState = iota
	cookieRejected
	cookieValid
)

// Middleware loads the request's session. A request without a usable cookie
// gets a fresh unset session that is only stored, and only receives a
// cookie, once a transition commits it. A valid cookie past half its
// lifetime is reissued and the stored session's timeout restarted.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, expires, state := s.load(ctx, r)
		switch state {
		case cookieValid:
			if time.Until(expires) < s.tokens.TTL()/2 {
				s.refresh(ctx, w, sess)
			}
		case cookieRejected:
			s.clearCookie(w)
		}

		holder := &sessionHolder{sess: sess, fresh: state != cookieValid}
		if holder.fresh {
			holder.sess = session.New()
		}
		annotate(ctx, holder.sess)
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, SessionKey, holder)))
	})
}

func (s *Sessions) load(ctx context.Context, r *http.Request) (session.Session, time.Time, cookieState) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return session.Session{}, time.Time{}, cookieMissing
	}
	id, expires, err := s.tokens.Parse(c.Value)
	if err != nil {
		s.logger.Debug("discarding session cookie", zap.Error(err))
		return session.Session{}, time.Time{}, cookieRejected
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			s.logger.Warn("session lookup failed", zap.String("session_id", id), zap.Error(err))
		}
		return session.Session{}, time.Time{}, cookieRejected
	}
	return sess, expires, cookieValid
}

// refresh slides the session's lifetime. Failures keep the current cookie,
// which stays valid until its own expiry.
func (s *Sessions) refresh(ctx context.Context, w http.ResponseWriter, sess session.Session) {
	if err := s.store.Touch(ctx, sess.ID); err != nil {
		s.logger.Warn("failed to refresh session",
			zap.String("session_id", sess.ID),
			zap.String("request_id", GetRequestID(ctx)),
			zap.Error(err))
		return
	}
	if err := s.setCookie(w, sess); err != nil {
		s.logger.Warn("failed to reissue session cookie", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (s *Sessions) save(ctx context.Context, w http.ResponseWriter, sess session.Session) error {
	if err := s.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return s.setCookie(w, sess)
}

func (s *Sessions) setCookie(w http.ResponseWriter, sess session.Session) error {
	token, expires, err := s.tokens.Issue(sess)
	if err != nil {
		return fmt.Errorf("issue session token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Sessions) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Commit persists a transitioned session, refreshes the cookie and makes the
// new state visible to the rest of the request.
func (s *Sessions) Commit(w http.ResponseWriter, r *http.Request, sess session.Session) error {
	if err := s.save(r.Context(), w, sess); err != nil {
		return err
	}
	if h, ok := r.Context().Value(SessionKey).(*sessionHolder); ok && h.set(sess) {
		ev := session.Started(sess)
		s.logger.Debug("session started",
			zap.String("session_id", ev.SessionID),
			zap.String("event_id", ev.ID))
	}
	annotate(r.Context(), sess)
	return nil
}

func annotate(ctx context.Context, sess session.Session) {
	if l := logFields(ctx); l != nil {
		l.sessionID = sess.ID
		l.role = sess.Role.String()
	}
}

// RequireRole rejects requests whose session role is not one of roles:
// 401 when unauthenticated, 403 otherwise.
func RequireRole(roles ...session.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := CurrentSession(r.Context()).Role
			if !role.Authenticated() {
				JSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			JSONError(w, http.StatusForbidden, "forbidden for role "+role.String())
		})
	}
}
