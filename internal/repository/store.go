package repository

import (
    "context"

    "github.com/localmart/identity/internal/model"
)

// NewUser carries the fields a flow knows when creating an account.  Empty
// strings become NULL columns.  PasswordHash is already hashed by the
// caller; federated flows leave it empty so the account can never be used
// for password login.
type NewUser struct {
    Email        string
    Phone        string
    PasswordHash string
    DisplayName  string
}

// UserStore is the credential-store surface the identity flows depend on.
// The MySQL implementation is UserRepo; tests substitute in-memory fakes.
type UserStore interface {
    // Create inserts a user and returns the stored record with its
    // generated id. Returns ErrEmailExists or ErrPhoneExists on a unique
    // collision.
    Create(ctx context.Context, nu NewUser) (model.User, error)
    // CreateWithIdentity inserts a user and its external identity link in
    // one transaction, so a half-created federated account can never be
    // observed. The identity insert absorbs duplicates.
    CreateWithIdentity(ctx context.Context, nu NewUser, provider, providerID string) (model.User, error)
    GetByID(ctx context.Context, id string) (model.User, error)
    GetByEmail(ctx context.Context, email string) (model.User, error)
    GetByPhone(ctx context.Context, phone string) (model.User, error)
    // TouchLastSignIn records a successful sign-in.
    TouchLastSignIn(ctx context.Context, id string) error
    // UpdatePhone binds a verified phone number to the user and records
    // the sign-in in the same statement.
    UpdatePhone(ctx context.Context, id, phone string) error
}

// IdentityStore manages (provider, provider_id) -> user links.
type IdentityStore interface {
    // Upsert creates the link if absent. Re-linking the same pair to the
    // same user is a no-op, never an error, so repeated OAuth callbacks
    // and phone verifications stay idempotent.
    Upsert(ctx context.Context, provider, providerID, userID string) error
    GetUserID(ctx context.Context, provider, providerID string) (string, error)
}

// SellerStore exposes the one fact the identity subsystem needs about
// seller profiles: whether one exists for a user.
type SellerStore interface {
    ExistsForUser(ctx context.Context, userID string) (bool, error)
}
