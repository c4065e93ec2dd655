package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidReference is returned when a write points at a missing parent row.
	ErrInvalidReference = errors.New("referenced record does not exist")
	// ErrOutOfRange is returned when a number does not fit its INT column.
	ErrOutOfRange = errors.New("value out of range")
)

// foreignKeyViolation is the SQLSTATE PostgreSQL reports for a failed FK check.
const foreignKeyViolation = "23503"

// DBTX is the subset of *pgxpool.Pool the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InitDB initializes the PostgreSQL connection pool and verifies it with a ping.
func InitDB(ctx context.Context, connString string, pingTimeout time.Duration) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	zap.L().Info("connected to PostgreSQL database")
	return pool, nil
}

// CreateSchema sets up the tables if they do not exist yet.
func CreateSchema(ctx context.Context, conn DBTX) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS questionnaires (
		id SERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		question_id SERIAL PRIMARY KEY,
		questionnaire_id INT NOT NULL,
		question_text TEXT NOT NULL,
		factor TEXT,
		FOREIGN KEY (questionnaire_id) REFERENCES questionnaires(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS answers (
		id SERIAL PRIMARY KEY,
		question_id INT NOT NULL,
		answer_text TEXT NOT NULL,
		score INT NOT NULL,
		FOREIGN KEY (question_id) REFERENCES questions(question_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS subjects (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		age INT NOT NULL,
		gender TEXT NOT NULL,
		contact TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id SERIAL PRIMARY KEY,
		subject_id INT NOT NULL,
		questionnaire_id INT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'assigned' CHECK (status IN ('assigned', 'reported')),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (subject_id) REFERENCES subjects(id) ON DELETE CASCADE,
		FOREIGN KEY (questionnaire_id) REFERENCES questionnaires(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS assignments_subject_questionnaire_idx
		ON assignments (subject_id, questionnaire_id);

	CREATE TABLE IF NOT EXISTS reports (
		id SERIAL PRIMARY KEY,
		assignment_id INT NOT NULL UNIQUE, -- one report per assignment, rewrites replace it
		total_score INT NOT NULL,
		factor_scores JSONB NOT NULL,
		conclusion TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (assignment_id) REFERENCES assignments(id) ON DELETE CASCADE
	);
	`
	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}
	return nil
}

// classify maps driver errors onto the store's sentinel errors.
func classify(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s", ErrInvalidReference, pgErr.ConstraintName)
	}
	return err
}
