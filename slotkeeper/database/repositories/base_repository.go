package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// Postgres SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// BaseRepository provides common repository functionality
type BaseRepository struct {
	db             *bun.DB
	defaultTimeout time.Duration
	maxRetries     int
	retryBackoff   time.Duration
}

func NewBaseRepository(db *bun.DB) *BaseRepository {
	return &BaseRepository{
		db:             db,
		defaultTimeout: config.DefaultQueryTimeout,
		maxRetries:     config.MaxRetries,
		retryBackoff:   config.RetryBackoff,
	}
}

// RepositoryError represents a repository-level error. It matches slots.ErrStoreIO.
type RepositoryError struct {
	Operation string
	Entity    string
	Err       error
}

func (re *RepositoryError) Error() string {
	return fmt.Sprintf("repository error during %s for %s: %v", re.Operation, re.Entity, re.Err)
}

func (re *RepositoryError) Unwrap() error {
	return re.Err
}

func (re *RepositoryError) Is(target error) bool {
	return target == slots.ErrStoreIO
}

// NotFoundError represents an entity not found error. It matches slots.ErrNotFound.
type NotFoundError struct {
	Entity string
	ID     any
}

func (nfe *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %v not found", nfe.Entity, nfe.ID)
}

func (nfe *NotFoundError) Is(target error) bool {
	return target == slots.ErrNotFound
}

// ConflictError represents a data conflict error. It matches slots.ErrAlreadyExists.
type ConflictError struct {
	Entity string
	Field  string
	Value  any
}

func (ce *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %v already exists", ce.Entity, ce.Field, ce.Value)
}

func (ce *ConflictError) Is(target error) bool {
	return target == slots.ErrAlreadyExists
}

func (br *BaseRepository) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, br.defaultTimeout)
}

// HandleErrorWithID maps driver errors onto the repository error types.
func (br *BaseRepository) HandleErrorWithID(operation, entity string, id any, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	if code, constraint := sqlState(err); code == codeUniqueViolation {
		return &ConflictError{Entity: entity, Field: constraint, Value: id}
	}
	return &RepositoryError{Operation: operation, Entity: entity, Err: err}
}

// Transaction runs fn in a database transaction, retrying it from the start on
// serialization failures and deadlocks. Errors returned by fn that already
// carry a meaning are passed through untouched.
func (br *BaseRepository) Transaction(ctx context.Context, fn func(context.Context, bun.Tx) error) error {
	timeoutCtx, cancel := br.WithTimeout(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt <= br.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("Retrying transaction",
				slog.String("type", "db"),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			select {
			case <-timeoutCtx.Done():
				return &RepositoryError{Operation: "transaction", Entity: "slot", Err: timeoutCtx.Err()}
			case <-time.After(time.Duration(attempt) * br.retryBackoff):
			}
		}

		err = br.db.RunInTx(timeoutCtx, nil, fn)
		if err == nil || !IsRetryable(err) {
			break
		}
	}
	if err == nil || isDomainError(err) {
		return err
	}
	return &RepositoryError{Operation: "transaction", Entity: "slot", Err: err}
}

func (br *BaseRepository) GetDB() *bun.DB {
	return br.db
}

// IsRetryable reports whether err is a transient Postgres contention error.
func IsRetryable(err error) bool {
	code, _ := sqlState(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}

// fieldError is implemented by pgdriver.Error.
type fieldError interface {
	error
	Field(k byte) string
}

// sqlState extracts the SQLSTATE code and constraint name from either driver.
func sqlState(err error) (code, constraint string) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName
	}
	var fe fieldError
	if errors.As(err, &fe) {
		return fe.Field('C'), fe.Field('n')
	}
	return "", ""
}

func isDomainError(err error) bool {
	for _, known := range []error{
		slots.ErrNotFound,
		slots.ErrAlreadyExists,
		slots.ErrPreconditionFailed,
		slots.ErrInvalidKey,
		slots.ErrAlreadyOwned,
		slots.ErrStoreIO,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
