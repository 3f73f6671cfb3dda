package user

import (
	"context"
	"errors"
)

// ErrNoSuchUser failed to validate the credential
var ErrNoSuchUser = errors.New("No such user or password is incorrect")

// ErrDuplicatedUser unique key constraint violation
var ErrDuplicatedUser = errors.New("Username or email is already registered")

// ErrUserTooManyRetry login is locked after too many failed attempts
var ErrUserTooManyRetry = errors.New("Too many failed login attempts, please try again later")

// UserModel registered learner
type UserModel struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"-"` // bcrypt hash
	LoginRetry int    `json:"-"`
	LastLogin  int64  `json:"-"` // unix seconds of the last login attempt
}

// SignUpForm registration payload
type SignUpForm struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Credential login payload, Username may hold the email
type Credential struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserRepository user persistence
type UserRepository interface {
	// FindByCredential query by username or email, returns nil if not found
	FindByCredential(ctx context.Context, username, email string) (*UserModel, error)
	SaveUser(ctx context.Context, post *UserModel) error
	UpdateLogin(ctx context.Context, post *UserModel) error
}

// UserUseCase user operations
type UserUseCase interface {
	SignUp(ctx context.Context, form *SignUpForm) (*UserModel, error)
	SignIn(ctx context.Context, cred *Credential) (*UserModel, error)
	Exists(ctx context.Context, username, email string) (bool, error)
}
