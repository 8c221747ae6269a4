package db

import (
	"errors"

	"github.com/lib/pq"
)

// pgUniqueViolation - код SQLSTATE нарушения уникального индекса.
const pgUniqueViolation = "23505"

// IsUniqueViolation сообщает, что вставка упёрлась в уникальный индекс.
// Если constraint не пуст, проверяется ещё и имя индекса.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
