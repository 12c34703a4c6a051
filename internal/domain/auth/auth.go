package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidCredentials is returned when the upstream rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned when a request carries no valid session.
	ErrUnauthorized = errors.New("unauthorized")
)

// Credentials is the username/password pair submitted on login.
type Credentials struct {
	Username string
	Password string
}

// User is the profile returned by the upstream auth endpoint.
type User struct {
	ID        int64
	Username  string
	Email     string
	FirstName string
	LastName  string
	Image     string
}

// Session is the result of a successful login. Token is opaque to this service.
type Session struct {
	Token        string
	RefreshToken string
	User         User
}

// Authenticator exchanges credentials for a session and resolves tokens.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	Me(ctx context.Context, token string) (User, error)
}
