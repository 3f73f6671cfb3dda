package user

import (
	"context"

	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/uuid"
)

// UserSQL UserRepository over mysql or postgres
type UserSQL struct {
	Conn          driver.ITransactionalDB
	UUIDGenerator uuid.Generator
}

var _ UserRepository = &UserSQL{}

// NewUserRepository .
func NewUserRepository(Conn driver.ITransactionalDB, UUIDGenerator uuid.Generator) *UserSQL {
	return &UserSQL{Conn, UUIDGenerator}
}

// FindByCredential query user with provided credential
func (repo *UserSQL) FindByCredential(ctx context.Context, username, email string) (*UserModel, error) {
	conn := repo.Conn
	row, err := conn.QueryContext(ctx, `SELECT id, username, password, email, login_retry, last_login
	FROM "user" WHERE username = $1 OR email = $2`, username, email)
	if err != nil {
		return nil, err
	}
	defer row.Close()

	if row.Next() {
		user := new(UserModel)
		if err := row.Scan(&user.ID, &user.Username, &user.Password, &user.Email, &user.LoginRetry, &user.LastLogin); err != nil {
			return nil, err
		}
		return user, nil
	}
	return nil, nil
}

// SaveUser insert post with a generated id
func (repo *UserSQL) SaveUser(ctx context.Context, post *UserModel) error {
	conn := repo.Conn
	id, err := repo.UUIDGenerator.Generate()
	if err != nil {
		return err
	}
	post.ID = id

	_, err = conn.ExecContext(ctx, `INSERT INTO "user"(id, username, password, email, login_retry, last_login)
	VALUES($1, $2, $3, $4, $5, $6)`, post.ID, post.Username, post.Password, post.Email, post.LoginRetry, post.LastLogin)
	if driver.IsDuplicateKey(err) {
		return ErrDuplicatedUser
	}
	return err
}

// UpdateLogin persist retry counter and last attempt
func (repo *UserSQL) UpdateLogin(ctx context.Context, post *UserModel) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `UPDATE "user"
	SET login_retry = $1,
			last_login = $2
	WHERE id = $3`, post.LoginRetry, post.LastLogin, post.ID)
	return err
}
