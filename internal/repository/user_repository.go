package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/localmart/identity/internal/model"
)

// UserRepo is the MySQL-backed UserStore.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,phone,password_hash,display_name,created_at,last_sign_in_at"

// Create inserts a user and returns the stored record.
func (r *UserRepo) Create(ctx context.Context, nu NewUser) (model.User, error) {
	u := newUserRecord(nu)
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, phone, password_hash, display_name, created_at, last_sign_in_at) VALUES (?,?,?,?,?,?,?)",
		u.ID, nullable(u.Email), nullable(u.Phone), nullable(u.PasswordHash), u.DisplayName, u.CreatedAt, u.LastSignInAt)
	if err != nil {
		return model.User{}, mapDuplicate(err)
	}
	return u, nil
}

// CreateWithIdentity inserts the user and its external identity link in a
// single transaction. The identity insert tolerates a pre-existing
// (provider, provider_id) row, matching the upsert contract.
func (r *UserRepo) CreateWithIdentity(ctx context.Context, nu NewUser, provider, providerID string) (model.User, error) {
	u := newUserRecord(nu)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (id, email, phone, password_hash, display_name, created_at, last_sign_in_at) VALUES (?,?,?,?,?,?,?)",
		u.ID, nullable(u.Email), nullable(u.Phone), nullable(u.PasswordHash), u.DisplayName, u.CreatedAt, u.LastSignInAt)
	if err != nil {
		return model.User{}, mapDuplicate(err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO external_identities (provider, provider_id, user_id) VALUES (?,?,?) ON DUPLICATE KEY UPDATE user_id=user_id",
		provider, providerID, u.ID)
	if err != nil {
		return model.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// GetByPhone fetches a user by phone number.
func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE phone=? LIMIT 1", phone)
}

// TouchLastSignIn records a successful sign-in.
func (r *UserRepo) TouchLastSignIn(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET last_sign_in_at=NOW() WHERE id=?", id)
	return err
}

// UpdatePhone binds a verified phone number and records the sign-in.
func (r *UserRepo) UpdatePhone(ctx context.Context, id, phone string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET phone=?, last_sign_in_at=NOW() WHERE id=?", phone, id)
	return mapDuplicate(err)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg interface{}) (model.User, error) {
	var (
		u                  model.User
		email, phone, hash sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &email, &phone, &hash, &u.DisplayName, &u.CreatedAt, &u.LastSignInAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Email, u.Phone, u.PasswordHash = email.String, phone.String, hash.String
	return u, nil
}

func newUserRecord(nu NewUser) model.User {
	now := time.Now().UTC()
	return model.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(nu.Email)),
		Phone:        strings.TrimSpace(nu.Phone),
		PasswordHash: nu.PasswordHash,
		DisplayName:  strings.TrimSpace(nu.DisplayName),
		CreatedAt:    now,
		LastSignInAt: now,
	}
}

// nullable converts an empty string to NULL so optional columns keep their
// unique indexes usable (multiple NULLs are allowed, multiple '' are not).
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// mapDuplicate translates a MySQL duplicate-key error (1062) into the
// matching sentinel based on which unique index tripped.
func mapDuplicate(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "1062") {
		return err
	}
	if strings.Contains(msg, "phone") {
		return ErrPhoneExists
	}
	return ErrEmailExists
}
