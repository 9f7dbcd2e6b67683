package model

import "time"

// User represents an account record as stored in the `users` table.  The id
// is an opaque UUID generated at creation.  Email, Phone and PasswordHash
// are all optional: a password signup fills email+hash, a Google signup
// fills email only, a phone-verification signup may fill phone only.  An
// empty string means the column is NULL.  Whether an account is a seller is
// not a field here; it is determined by the presence of a row in the
// `sellers` table.
//
// Fields:
//  ID           – UUID primary key of the user.
//  Email        – unique email address, stored lowercase (empty when absent).
//  Phone        – unique phone number in E.164 form (empty when absent).
//  PasswordHash – bcrypt hash (empty for federation-only accounts).
//  DisplayName  – name shown to other marketplace users.
//  CreatedAt    – timestamp of creation.
//  LastSignInAt – timestamp of the most recent successful sign-in.
type User struct {
    ID           string    // users.id
    Email        string    // users.email (nullable)
    Phone        string    // users.phone (nullable)
    PasswordHash string    // users.password_hash (nullable)
    DisplayName  string    // users.display_name
    CreatedAt    time.Time // users.created_at
    LastSignInAt time.Time // users.last_sign_in_at
}

// HasPassword reports whether the account can authenticate with a password.
// Accounts created via Google or phone verification never get a hash, and
// password login is categorically rejected for them.
func (u User) HasPassword() bool { return u.PasswordHash != "" }

// ExternalIdentity links a User to a third-party credential.  The pair
// (Provider, ProviderID) is globally unique: "google" with the id_token
// subject, or "truecaller" with the provider's user id.  A collision on
// creation means the link already exists and is absorbed as a no-op.
//
// Fields:
//  ID         – numeric primary key.
//  Provider   – credential source name ("google", "truecaller").
//  ProviderID – stable subject identifier issued by the provider.
//  UserID     – owning user (many identities to one user).
//  CreatedAt  – timestamp of creation.
type ExternalIdentity struct {
    ID         uint64    // external_identities.id
    Provider   string    // external_identities.provider
    ProviderID string    // external_identities.provider_id
    UserID     string    // external_identities.user_id
    CreatedAt  time.Time // external_identities.created_at
}

// Seller is the seller profile attached to a user.  Only its existence
// matters to the identity subsystem; profile editing lives elsewhere.
type Seller struct {
    ID        uint64    // sellers.id
    UserID    string    // sellers.user_id
    ShopName  string    // sellers.shop_name
    CreatedAt time.Time // sellers.created_at
}
