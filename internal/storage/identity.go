package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type IdentityKind string

const (
	KindGroup IdentityKind = "group"
	KindUser  IdentityKind = "user"
)

func ParseKind(raw string) (IdentityKind, bool) {
	switch IdentityKind(raw) {
	case KindGroup, KindUser:
		return IdentityKind(raw), true
	}
	return "", false
}

type IdentityStatus string

const (
	StatusPending  IdentityStatus = "pending"
	StatusAllowed  IdentityStatus = "allowed"
	StatusRejected IdentityStatus = "rejected"
)

func ParseStatus(raw string) (IdentityStatus, bool) {
	switch IdentityStatus(raw) {
	case StatusPending, StatusAllowed, StatusRejected:
		return IdentityStatus(raw), true
	}
	return "", false
}

// Identity is a managed group or user keyed by its platform external id.
// NotifyChatID/NotifyMessageID point at the approval notification sent to
// the operator, so a later resolution can edit it in place; both are zero
// when no notification exists.
type Identity struct {
	ID              int64
	Kind            IdentityKind
	ExternalID      string
	DisplayName     string
	Status          IdentityStatus
	Secret          string
	NotifyChatID    int64
	NotifyMessageID int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const identityColumns = `id, kind, external_id, display_name, status, secret,
	notify_chat_id, notify_message_id, created_at, updated_at`

// CreateIdentity inserts a new row. A uniqueness collision on
// (kind, external_id) returns ErrConflict and leaves the existing row
// untouched; this is the primitive concurrent discovery relies on.
func (s *Store) CreateIdentity(ctx context.Context, ident *Identity) error {
	now := time.Now().UTC()
	if ident.Status == "" {
		ident.Status = StatusPending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (kind, external_id, display_name, status, secret, notify_chat_id, notify_message_id, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(kind, external_id) DO NOTHING`,
		ident.Kind, ident.ExternalID, ident.DisplayName, ident.Status, ident.Secret,
		ident.NotifyChatID, ident.NotifyMessageID,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ident.ID = id
	ident.CreatedAt = now
	ident.UpdatedAt = now
	return nil
}

func (s *Store) FindIdentity(ctx context.Context, kind IdentityKind, externalID string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE kind = ? AND external_id = ?`,
		kind, externalID,
	)
	return scanIdentity(row)
}

// UpdateIdentityStatus moves an identity to status. It reports changed=false
// when the row was already in the target status; that is a success, not an
// error, so replayed operator decisions stay idempotent.
func (s *Store) UpdateIdentityStatus(ctx context.Context, kind IdentityKind, externalID string, status IdentityStatus) (changed bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE identities SET status = ?, updated_at = ?
		 WHERE kind = ? AND external_id = ? AND status <> ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), kind, externalID, status,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// No row updated: either absent or already in the target status.
	if _, err := s.FindIdentity(ctx, kind, externalID); err != nil {
		return false, err
	}
	return false, nil
}

// UpdateIdentityFields overwrites display name and secret.
func (s *Store) UpdateIdentityFields(ctx context.Context, kind IdentityKind, externalID, displayName, secret string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE identities SET display_name = ?, secret = ?, updated_at = ?
		 WHERE kind = ? AND external_id = ?`,
		displayName, secret, time.Now().UTC().Format(time.RFC3339Nano), kind, externalID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateIdentityNotification records the coordinates of the approval
// notification so it can be edited when the identity is resolved.
func (s *Store) UpdateIdentityNotification(ctx context.Context, kind IdentityKind, externalID string, chatID int64, messageID int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE identities SET notify_chat_id = ?, notify_message_id = ?, updated_at = ?
		 WHERE kind = ? AND external_id = ?`,
		chatID, messageID, time.Now().UTC().Format(time.RFC3339Nano), kind, externalID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIdentity removes the row. Deleting an absent identity is a no-op.
func (s *Store) DeleteIdentity(ctx context.Context, kind IdentityKind, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM identities WHERE kind = ? AND external_id = ?`, kind, externalID)
	return err
}

// ListIdentities returns every identity ordered by status, kind, then name,
// which is the grouping the operator's /list output wants.
func (s *Store) ListIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities
		 ORDER BY status, kind, display_name, external_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ident)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*Identity, error) {
	var (
		ident              Identity
		createdAt, updated string
	)
	err := row.Scan(&ident.ID, &ident.Kind, &ident.ExternalID, &ident.DisplayName,
		&ident.Status, &ident.Secret, &ident.NotifyChatID, &ident.NotifyMessageID,
		&createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ident.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	ident.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &ident, nil
}
