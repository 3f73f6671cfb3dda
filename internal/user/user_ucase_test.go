package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryRepo struct {
	mu      sync.Mutex
	users   []*UserModel
	findErr error
	updates int
}

func (m *memoryRepo) FindByCredential(ctx context.Context, username, email string) (*UserModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) SaveUser(ctx context.Context, post *UserModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post.ID = fmt.Sprintf("id-%d", len(m.users)+1)
	c := *post
	m.users = append(m.users, &c)
	return nil
}

func (m *memoryRepo) UpdateLogin(ctx context.Context, post *UserModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	for _, u := range m.users {
		if u.ID == post.ID {
			u.LoginRetry = post.LoginRetry
			u.LastLogin = post.LastLogin
		}
	}
	return nil
}

func newTestUseCase(repo UserRepository) (*UserUseCaseImpl, *time.Time) {
	uc := NewUserUseCase(repo, 3, time.Hour)
	uc.HashCost = bcrypt.MinCost
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return now }
	return uc, &now
}

func TestUserUseCase_SignUp(t *testing.T) {
	ctx := context.Background()
	repo := new(memoryRepo)
	uc, _ := newTestUseCase(repo)

	user, err := uc.SignUp(ctx, &SignUpForm{Username: "ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", user.ID)
	assert.NotEqual(t, "secret1", user.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("secret1")))

	_, err = uc.SignUp(ctx, &SignUpForm{Username: "other", Email: "ann@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrDuplicatedUser)

	boom := errors.New("boom")
	repo.findErr = boom
	_, err = uc.SignUp(ctx, &SignUpForm{Username: "bob", Email: "bob@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, boom)
}

func TestUserUseCase_SignIn(t *testing.T) {
	ctx := context.Background()
	repo := new(memoryRepo)
	uc, now := newTestUseCase(repo)
	_, err := uc.SignUp(ctx, &SignUpForm{Username: "ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)

	user, err := uc.SignIn(ctx, &Credential{Username: "ann", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "ann", user.Username)

	// email works as the login name
	_, err = uc.SignIn(ctx, &Credential{Username: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = uc.SignIn(ctx, &Credential{Username: "nobody", Password: "secret1"})
	assert.ErrorIs(t, err, ErrNoSuchUser)

	for i := 0; i < 3; i++ {
		_, err = uc.SignIn(ctx, &Credential{Username: "ann", Password: "wrong"})
		assert.ErrorIs(t, err, ErrNoSuchUser)
	}
	assert.Equal(t, 3, repo.users[0].LoginRetry)

	// locked even with the right password
	_, err = uc.SignIn(ctx, &Credential{Username: "ann", Password: "secret1"})
	assert.ErrorIs(t, err, ErrUserTooManyRetry)

	*now = now.Add(time.Hour)
	_, err = uc.SignIn(ctx, &Credential{Username: "ann", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, 0, repo.users[0].LoginRetry)
	assert.Equal(t, now.Unix(), repo.users[0].LastLogin)
}

func TestUserUseCase_Exists(t *testing.T) {
	ctx := context.Background()
	repo := new(memoryRepo)
	uc, _ := newTestUseCase(repo)
	_, err := uc.SignUp(ctx, &SignUpForm{Username: "ann", Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)

	testCases := []struct {
		name     string
		username string
		email    string
		want     bool
	}{
		{"by username", "ann", "", true},
		{"by email", "", "ann@example.com", true},
		{"unknown", "bob", "bob@example.com", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := uc.Exists(ctx, tc.username, tc.email)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}
