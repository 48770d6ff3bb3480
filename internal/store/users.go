package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskrelay/internal/logging"
)

// User is a task-management account. Senders unknown to the system are
// created on demand with a non-privileged role and marked as externally
// authenticated.
type User struct {
	ID            string
	PrincipalName string
	DisplayName   string
	FirstName     string
	LastName      string
	Mail          string
	Role          string
	ExternalAuth  bool
	CreatedAt     time.Time
}

// FindUserByPrincipalName returns the user with the given principal name,
// or nil when no such user exists.
func (s *Store) FindUserByPrincipalName(ctx context.Context, principal string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, principal_name, display_name, first_name, last_name, mail, role, external_auth, created_at
		 FROM users WHERE principal_name = ?`, principal)

	var u User
	var display, first, last, mail sql.NullString
	var externalAuth int
	err := row.Scan(&u.ID, &u.PrincipalName, &display, &first, &last, &mail, &u.Role, &externalAuth, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	u.DisplayName = display.String
	u.FirstName = first.String
	u.LastName = last.String
	u.Mail = mail.String
	u.ExternalAuth = externalAuth != 0
	return &u, nil
}

// CreateUser inserts a new user record.
func (s *Store) CreateUser(ctx context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "member"
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, principal_name, display_name, first_name, last_name, mail, role, external_auth, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.PrincipalName, u.DisplayName, u.FirstName, u.LastName, u.Mail, u.Role,
		boolToInt(u.ExternalAuth), u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logging.Store("User created: principal=%s role=%s", u.PrincipalName, u.Role)
	return u, nil
}
