package repository

import (
	"context"
	"database/sql"
)

// SellerRepo answers seller-profile existence checks (MySQL-backed SellerStore).
type SellerRepo struct{ DB *sql.DB }

func NewSellerRepo(db *sql.DB) *SellerRepo { return &SellerRepo{DB: db} }

// ExistsForUser reports whether the user has a seller profile. The seller
// flag inside a session token is a per-login assertion; this is the
// persisted fact.
func (r *SellerRepo) ExistsForUser(ctx context.Context, userID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM sellers WHERE user_id=? LIMIT 1", userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
