package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Store-level conditions the services translate at their boundary. The
// pipeline needs to tell a missing row from a violated reference, so the
// two are kept distinct instead of collapsing into one "db error".
var (
	ErrNotFound   = errors.New("record not found")
	ErrForeignKey = errors.New("foreign key violated")
	ErrDuplicate  = errors.New("duplicate record")
)

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

// translateError maps driver errors onto the store-level sentinels,
// keeping the original error wrapped for logging.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			return errors.Join(ErrForeignKey, err)
		case pqUniqueViolation:
			return errors.Join(ErrDuplicate, err)
		}
	}

	return err
}
