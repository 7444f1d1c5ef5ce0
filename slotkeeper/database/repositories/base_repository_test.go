package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeFieldError mimics pgdriver.Error.
type fakeFieldError map[byte]string

func (e fakeFieldError) Error() string       { return "pg: " + e['M'] }
func (e fakeFieldError) Field(k byte) string { return e[k] }

func TestBaseRepository_HandleErrorWithID(t *testing.T) {
	br := &BaseRepository{}

	tests := []struct {
		name string
		err  error
		want error
		kind string
	}{
		{name: "nil", err: nil, want: nil},
		{name: "no rows", err: sql.ErrNoRows, want: slots.ErrNotFound, kind: "not found"},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", sql.ErrNoRows), want: slots.ErrNotFound, kind: "not found"},
		{
			name: "pgdriver unique violation",
			err:  fakeFieldError{'C': "23505", 'n': "slots_recovery_secret_key", 'M': "duplicate"},
			want: slots.ErrAlreadyExists,
			kind: "conflict",
		},
		{
			name: "pgx unique violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "slots_pkey"},
			want: slots.ErrAlreadyExists,
			kind: "conflict",
		},
		{name: "other", err: errors.New("connection reset"), want: slots.ErrStoreIO, kind: "repository"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := br.HandleErrorWithID("get", "slot", "42", tt.err)
			if tt.want == nil {
				if got != nil {
					t.Errorf("HandleErrorWithID() got = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("HandleErrorWithID() got = %v, want match for %v", got, tt.want)
			}
			switch tt.kind {
			case "not found":
				if !IsNotFound(got) {
					t.Errorf("IsNotFound(%v) = false, want true", got)
				}
			case "conflict":
				if !IsConflict(got) {
					t.Errorf("IsConflict(%v) = false, want true", got)
				}
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization", fakeFieldError{'C': "40001"}, true},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique", fakeFieldError{'C': "23505"}, false},
		{"plain", errors.New("boom"), false},
		{"context", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDomainError(t *testing.T) {
	if !isDomainError(fmt.Errorf("%w: on hold", slots.ErrPreconditionFailed)) {
		t.Errorf("isDomainError() got = false for precondition, want true")
	}
	if !isDomainError(&NotFoundError{Entity: "slot", ID: "1"}) {
		t.Errorf("isDomainError() got = false for NotFoundError, want true")
	}
	if isDomainError(errors.New("tx closed")) {
		t.Errorf("isDomainError() got = true for driver error, want false")
	}
}
