package progress

import (
	"context"
	"database/sql"
	"time"

	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/progression"
)

// ProgressSQL ProgressRepository over mysql or postgres.
//
// Records are sparse: a lesson without a row is locked and not completed.
// course_enrollment marks the record as initialized.
type ProgressSQL struct {
	Conn driver.ITransactionalDB
	now  func() time.Time
}

var _ ProgressRepository = &ProgressSQL{}

// NewProgressRepository .
func NewProgressRepository(Conn driver.ITransactionalDB) *ProgressSQL {
	return &ProgressSQL{
		Conn: Conn,
		now:  time.Now,
	}
}

var writeTx = &driver.TxOptions{
	Isolation:  sql.LevelReadCommitted,
	AccessMode: driver.AccessReadWrite,
}

func (repo *ProgressSQL) FindByUser(ctx context.Context, userID string) (progression.Record, error) {
	conn := repo.Conn
	enrolled, err := repo.enrolled(ctx, conn, userID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, ErrNotInitialized
	}

	rows, err := conn.QueryContext(ctx, `
SELECT
    lesson_id, completed, unlocked
FROM
    lesson_progress
WHERE
    user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	record := make(progression.Record)
	for rows.Next() {
		var (
			id    int
			entry progression.Entry
		)
		if err := rows.Scan(&id, &entry.Completed, &entry.Unlocked); err != nil {
			return nil, err
		}
		record[id] = entry
	}
	return record, nil
}

func (repo *ProgressSQL) InitRecord(ctx context.Context, userID string, seed []*progression.LessonProgress) (created bool, err error) {
	err = driver.WithTx(ctx, repo.Conn, writeTx, func(tx driver.ITransactionalDB) error {
		if enrolled, err := repo.enrolled(ctx, tx, userID); err != nil || enrolled {
			return err
		}
		now := repo.now().Unix()
		if _, err := tx.ExecContext(ctx, `INSERT INTO course_enrollment(user_id, created_at) VALUES($1, $2)`, userID, now); err != nil {
			return err
		}
		created = true
		return repo.upsert(ctx, tx, userID, seed, now)
	})
	if driver.IsDuplicateKey(err) {
		// a concurrent init won
		return false, nil
	}
	return created, err
}

func (repo *ProgressSQL) SaveEntries(ctx context.Context, userID string, entries []*progression.LessonProgress) error {
	if len(entries) == 0 {
		return nil
	}
	return driver.WithTx(ctx, repo.Conn, writeTx, func(tx driver.ITransactionalDB) error {
		return repo.upsert(ctx, tx, userID, entries, repo.now().Unix())
	})
}

// upsert update-then-insert, portable across both drivers. Flags are OR-ed so
// concurrent writers can only move a lesson forward.
func (repo *ProgressSQL) upsert(ctx context.Context, tx driver.ITransactionalDB, userID string, entries []*progression.LessonProgress, now int64) error {
	for _, e := range entries {
		unlocked := e.Unlocked || e.Completed
		n, err := repo.update(ctx, tx, userID, e.LessonID, e.Completed, unlocked, now)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO lesson_progress(user_id, lesson_id, completed, unlocked, updated_at)
VALUES($1, $2, $3, $4, $5)
		`, userID, e.LessonID, e.Completed, unlocked, now)
		if driver.IsDuplicateKey(err) {
			// inserted concurrently, merge into that row instead
			_, err = repo.update(ctx, tx, userID, e.LessonID, e.Completed, unlocked, now)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (repo *ProgressSQL) update(ctx context.Context, tx driver.ITransactionalDB, userID string, lessonID int, completed, unlocked bool, now int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
UPDATE lesson_progress
SET
    completed = (completed OR $1),
    unlocked = (unlocked OR $2),
    updated_at = $3
WHERE
    user_id = $4 AND lesson_id = $5
	`, completed, unlocked, now, userID, lessonID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (repo *ProgressSQL) enrolled(ctx context.Context, conn driver.ITransactionalDB, userID string) (bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT 1 FROM course_enrollment WHERE user_id = $1`, userID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}
