package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

type sessionEntry struct {
	hash      []byte
	session   Session
	expiresAt time.Time
}

// Sessions keeps logged-in sessions in process memory. Tokens are never
// stored in the clear: entries are keyed by the HMAC-SHA256 of the token.
type Sessions struct {
	auth   Authenticator
	pepper []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]sessionEntry
}

// NewSessions creates a session store backed by the given Authenticator.
// A non-positive ttl keeps sessions until logout.
func NewSessions(auth Authenticator, pepper []byte, ttl time.Duration) *Sessions {
	return &Sessions{
		auth:    auth,
		pepper:  pepper,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]sessionEntry),
	}
}

// Login authenticates against the upstream and remembers the session.
func (s *Sessions) Login(ctx context.Context, creds Credentials) (Session, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		return Session{}, ErrInvalidCredentials
	}

	sess, err := s.auth.Login(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, errors.Wrap(err, "login")
	}
	if sess.Token == "" {
		return Session{}, errors.New("login: upstream returned no token")
	}

	now := s.now()
	hash := s.hash(sess.Token)
	entry := sessionEntry{hash: hash, session: sess}
	if s.ttl > 0 {
		entry.expiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	s.sweep(now)
	s.entries[hex.EncodeToString(hash)] = entry
	s.mu.Unlock()

	return sess, nil
}

// Authenticate resolves a bearer token to its session. It returns
// ErrUnauthorized for unknown or expired tokens.
func (s *Sessions) Authenticate(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthorized
	}
	hash := s.hash(token)
	key := hex.EncodeToString(hash)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return Session{}, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, entry.hash) != 1 {
		return Session{}, ErrUnauthorized
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return Session{}, ErrUnauthorized
	}
	return entry.session, nil
}

// Refresh re-reads the user profile for token from the upstream and updates
// the stored session.
func (s *Sessions) Refresh(ctx context.Context, token string) (User, error) {
	if _, err := s.Authenticate(token); err != nil {
		return User{}, err
	}

	user, err := s.auth.Me(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.Logout(token)
		}
		return User{}, errors.Wrap(err, "refresh profile")
	}

	key := hex.EncodeToString(s.hash(token))
	s.mu.Lock()
	if entry, ok := s.entries[key]; ok {
		entry.session.User = user
		s.entries[key] = entry
	}
	s.mu.Unlock()

	return user, nil
}

// Logout forgets the session for token. Unknown tokens are ignored.
func (s *Sessions) Logout(token string) {
	key := hex.EncodeToString(s.hash(token))
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Sweep deletes expired sessions and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep(s.now())
}

// Run sweeps expired sessions every interval until ctx ends.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sessions) sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Sessions) hash(token string) []byte {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(token))
	return mac.Sum(nil)
}
