package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	serrors "go.pilab.hu/authd/errors"
)

// ErrUserNotFound is returned by user stores when no user matches.
var ErrUserNotFound = serrors.NotFound("User not found.")

// ErrInvalidUserCredentials hides whether the user or the password was wrong.
var ErrInvalidUserCredentials = serrors.New(serrors.KindAuthentication, "Invalid username or password.")

// User is the minimal account record needed to verify resource owner
// credentials.
//
//nolint:tagliatelle
type User struct {
	ID           string    `bson:"user_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
}

// UserStore looks users up and stores new ones.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	Insert(ctx context.Context, u *User) error
}

// UserAuthenticator verifies usernames and passwords.
type UserAuthenticator struct {
	store  UserStore
	hasher PasswordHasher
	// dummy is compared when the user does not exist to keep timing even.
	dummy string
}

// NewUserAuthenticator creates a new UserAuthenticator.
func NewUserAuthenticator(store UserStore, hasher PasswordHasher) *UserAuthenticator {
	dummy, _ := hasher.Hash(uuid.NewString())
	return &UserAuthenticator{store: store, hasher: hasher, dummy: dummy}
}

// Authenticate returns the user id for valid credentials.
func (a *UserAuthenticator) Authenticate(ctx context.Context, username, password string) (string, error) {
	u, err := a.store.FindByUsername(ctx, username)
	if err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			_ = a.hasher.Verify(a.dummy, password)
			return "", ErrInvalidUserCredentials
		}
		return "", err
	}

	if err := a.hasher.Verify(u.PasswordHash, password); err != nil {
		return "", ErrInvalidUserCredentials
	}

	return u.ID, nil
}

// CreateUser hashes password and stores a new user.
func (a *UserAuthenticator) CreateUser(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, serrors.Validation("Username and password are required.")
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.Insert(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
