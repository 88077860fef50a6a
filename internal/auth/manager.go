// Package auth owns credentials and sessions: password hashing, bearer
// token issue and validation, and the shared revocation set.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/romana/rlog"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/users"
)

// Config for the Manager.
type Config struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
}

// Manager implements registration, login, token validation and logout.
type Manager struct {
	users     *users.Store
	tokens    *TokenIssuer
	revoked   *RevocationStore
	cost      int
	dummyHash string
}

func NewManager(userStore *users.Store, revoked *RevocationStore, cfg Config) (*Manager, error) {
	// Compared against when the email is unknown so both login failures cost
	// one bcrypt comparison.
	dummy, err := HashPassword("not-a-real-password", cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &Manager{
		users:     userStore,
		tokens:    NewTokenIssuer(cfg.Secret, cfg.TokenTTL),
		revoked:   revoked,
		cost:      cfg.BcryptCost,
		dummyHash: dummy,
	}, nil
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *users.User
}

// Register creates a customer account.
func (m *Manager) Register(ctx context.Context, u users.User, password string) (*users.User, error) {
	hash, err := m.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	u.Role = users.RoleCustomer
	return m.users.Create(ctx, u)
}

// HashPassword hashes at the configured cost.
func (m *Manager) HashPassword(password string) (string, error) {
	return HashPassword(password, m.cost)
}

// Authenticate checks credentials and issues a token. Unknown email and wrong
// password both fail with ErrInvalidCredentials.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	u, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	hash := m.dummyHash
	if u != nil {
		hash = u.PasswordHash
	}
	ok, err := CheckPassword(hash, password)
	if err != nil {
		return nil, err
	}
	if u == nil || !ok {
		return nil, apperr.ErrInvalidCredentials
	}
	token, exp, err := m.IssueToken(u.UserID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// IssueToken signs a token for userID.
func (m *Manager) IssueToken(userID string) (string, time.Time, error) {
	return m.tokens.Issue(userID)
}

// ValidateToken returns the subject of a valid, unrevoked token.
func (m *Manager) ValidateToken(ctx context.Context, token string) (string, error) {
	claims, err := m.tokens.Parse(token)
	if err != nil {
		return "", err
	}
	revoked, err := m.revoked.IsRevoked(ctx, token)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", apperr.ErrTokenRevoked
	}
	return claims.Subject, nil
}

// Revoke adds token to the revocation set until it would have expired.
// Revoking an already expired token is a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := m.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, apperr.ErrTokenExpired) {
			return nil
		}
		return err
	}
	return m.revoked.Revoke(ctx, token, claims.ExpiresAt.Time)
}

// ErrAdminEmailTaken is returned by EnsureAdmin when a non-admin account
// holds the admin email and its password does not match the configured one.
var ErrAdminEmailTaken = apperr.Conflict("admin_email_taken", "admin email is held by another account")

// EnsureAdmin creates the bootstrap admin account when email is free. An
// existing non-admin account holding email is promoted only if its password
// matches password.
func (m *Manager) EnsureAdmin(ctx context.Context, email, password string) (*users.User, error) {
	existing, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Role == users.RoleAdmin {
			return existing, nil
		}
		ok, err := CheckPassword(existing.PasswordHash, password)
		if err != nil {
			return nil, err
		}
		if !ok {
			rlog.Warnf("[auth] refusing to promote user %s: password does not match the admin password", existing.UserID)
			return nil, ErrAdminEmailTaken
		}
		role := users.RoleAdmin
		rlog.Infof("[auth] promoting user %s to admin", existing.UserID)
		return m.users.Update(ctx, existing.UserID, users.Changes{Role: &role})
	}
	hash, err := m.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u, err := m.users.Create(ctx, users.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Admin",
		Role:         users.RoleAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	rlog.Infof("[auth] created admin user %s", u.UserID)
	return u, nil
}
