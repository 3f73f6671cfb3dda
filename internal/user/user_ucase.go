package user

import (
	"context"
	"errors"
	"time"

	"go.elastic.co/apm"
	"golang.org/x/crypto/bcrypt"
)

// UserUseCaseImpl ...
type UserUseCaseImpl struct {
	UserRepository UserRepository
	MaxRetry       int           // failed attempts before the login is locked, 0 disables locking
	RetryTimeout   time.Duration // lock duration
	HashCost       int
	now            func() time.Time
}

var _ UserUseCase = &UserUseCaseImpl{}

// NewUserUseCase ...
func NewUserUseCase(
	UserRepository UserRepository,
	MaxRetry int,
	RetryTimeout time.Duration,
) *UserUseCaseImpl {
	return &UserUseCaseImpl{
		UserRepository: UserRepository,
		MaxRetry:       MaxRetry,
		RetryTimeout:   RetryTimeout,
		HashCost:       bcrypt.DefaultCost,
		now:            time.Now,
	}
}

// SignUp create a user
func (uu *UserUseCaseImpl) SignUp(ctx context.Context, form *SignUpForm) (*UserModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UserUseCaseImpl.SignUp", "service")
	defer apmSpan.End()

	ur := uu.UserRepository
	// search for existence
	if m, err := ur.FindByCredential(ctx, form.Username, form.Email); err != nil {
		return nil, err
	} else if m != nil {
		return nil, ErrDuplicatedUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), uu.HashCost)
	if err != nil {
		return nil, err
	}
	post := &UserModel{
		Username:  form.Username,
		Email:     form.Email,
		Password:  string(hash),
		LastLogin: uu.now().Unix(),
	}
	if err := ur.SaveUser(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// SignIn verify the credential.
//
// Each mismatch bumps the retry counter; once it reaches MaxRetry the login is
// refused until RetryTimeout has passed since the last attempt.
func (uu *UserUseCaseImpl) SignIn(ctx context.Context, cred *Credential) (*UserModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UserUseCaseImpl.SignIn", "service")
	defer apmSpan.End()

	ur := uu.UserRepository
	user, err := ur.FindByCredential(ctx, cred.Username, cred.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNoSuchUser
	}

	now := uu.now()
	if uu.MaxRetry > 0 && user.LoginRetry >= uu.MaxRetry {
		if now.Sub(time.Unix(user.LastLogin, 0)) < uu.RetryTimeout {
			return nil, ErrUserTooManyRetry
		}
		user.LoginRetry = 0
	}

	user.LastLogin = now.Unix()
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(cred.Password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, err
		}
		user.LoginRetry++
		if err := ur.UpdateLogin(ctx, user); err != nil {
			return nil, err
		}
		return nil, ErrNoSuchUser
	}

	// reset retry number
	user.LoginRetry = 0
	if err := ur.UpdateLogin(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Exists find if user exists in database
func (uu *UserUseCaseImpl) Exists(ctx context.Context, username, email string) (bool, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UserUseCaseImpl.Exists", "service")
	defer apmSpan.End()

	user, err := uu.UserRepository.FindByCredential(ctx, username, email)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}
