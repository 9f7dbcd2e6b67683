// Package repository defines the credential store the identity flows run
// against: users, their external identity links and seller profiles.  The
// sentinel errors declared here let handlers distinguish failure scenarios
// without inspecting driver errors. For example, ErrEmailExists maps to an
// HTTP 409 on signup while ErrNotFound maps to 404/401 depending on the
// flow.
package repository

import "errors"

// ErrNotFound is returned when no user, identity or seller row matches the
// lookup. Repositories translate sql.ErrNoRows into this value so callers
// never depend on database/sql directly.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a signup collides with an existing email.
// Handlers should translate this into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrPhoneExists is returned when a phone number is already bound to a
// different account.
var ErrPhoneExists = errors.New("phone already exists")
