package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"timetable/internal/domain/viewer"
)

type contextKey string

const sessionContextKey contextKey = "viewer"

const sessionCookieName = "timetable_session"

// SessionStore maps opaque cookie tokens to viewer sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]storedSession
	ttl      time.Duration
	now      func() time.Time
}

type storedSession struct {
	session   viewer.Session
	expiresAt time.Time
}

// NewSessionStore creates a store whose sessions live for ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{sessions: make(map[string]storedSession), ttl: ttl, now: time.Now}
}

// Create stores s and returns its token.
// PRE: s is valid
// POST: Get(token) returns s until the ttl elapses
func (ss *SessionStore) Create(s viewer.Session) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[token] = storedSession{session: s, expiresAt: ss.now().Add(ss.ttl)}
	return token, nil
}

// Get returns the live session for token.
func (ss *SessionStore) Get(token string) (viewer.Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	stored, ok := ss.sessions[token]
	if !ok {
		return viewer.Session{}, false
	}
	if ss.now().After(stored.expiresAt) {
		delete(ss.sessions, token)
		return viewer.Session{}, false
	}
	return stored.session, true
}

// Delete ends the session for token.
func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, token)
}

// Claims is the bearer token payload.
type Claims struct {
	Role      string `json:"role"`
	ClassCode string `json:"classCode,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens for viewer sessions.
type Tokens struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer.
// PRE: key is non-empty
func NewTokens(key, issuer string, ttl time.Duration) *Tokens {
	return &Tokens{key: []byte(key), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for s.
// POST: Returns the token and its expiry
func (t *Tokens) Issue(s viewer.Session) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Role:      s.Role,
		ClassCode: s.ClassCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies a token and returns its session.
func (t *Tokens) Parse(token string) (viewer.Session, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return viewer.Session{}, err
	}
	s := viewer.Session{ID: claims.Subject, Role: claims.Role, ClassCode: claims.ClassCode}
	if err := s.Validate(); err != nil {
		return viewer.Session{}, errors.Join(jwt.ErrTokenInvalidClaims, err)
	}
	return s, nil
}

// Auth puts the caller's session into the request context. A bearer token
// wins over the session cookie. Unauthenticated requests pass through.
func Auth(sessions *SessionStore, tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := bearerToken(r); raw != "" && tokens != nil {
				if s, err := tokens.Parse(raw); err == nil {
					r = r.WithContext(ContextWithSession(r.Context(), s))
				}
			} else if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				if s, ok := sessions.Get(cookie.Value); ok {
					r = r.WithContext(ContextWithSession(r.Context(), s))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests without a session with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSessionFromContext(r.Context()); !ok {
			deny(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose session has none of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := GetSessionFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !allowed[s.Role] {
				deny(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// GetSessionFromContext returns the authenticated viewer, if any.
func GetSessionFromContext(ctx context.Context) (viewer.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(viewer.Session)
	return s, ok
}

// ContextWithSession returns ctx carrying s.
func ContextWithSession(ctx context.Context, s viewer.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionToken returns the session cookie value of r.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetSessionCookie sets the session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
