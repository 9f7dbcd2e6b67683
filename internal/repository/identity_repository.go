package repository

import (
	"context"
	"database/sql"
)

// IdentityRepo persists external identity links (MySQL-backed IdentityStore).
type IdentityRepo struct{ DB *sql.DB }

func NewIdentityRepo(db *sql.DB) *IdentityRepo { return &IdentityRepo{DB: db} }

// Upsert creates the (provider, provider_id) -> user link if it does not
// already exist. A duplicate is absorbed, so a user re-authenticating with
// the same Google account or phone number is a no-op here.
func (r *IdentityRepo) Upsert(ctx context.Context, provider, providerID, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO external_identities (provider, provider_id, user_id) VALUES (?,?,?) ON DUPLICATE KEY UPDATE user_id=user_id",
		provider, providerID, userID)
	return err
}

// GetUserID returns the user a provider identity is linked to.
func (r *IdentityRepo) GetUserID(ctx context.Context, provider, providerID string) (string, error) {
	var userID string
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM external_identities WHERE provider=? AND provider_id=? LIMIT 1",
		provider, providerID).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}
