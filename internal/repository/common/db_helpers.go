package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// GetByID читает строку таблицы по первичному ключу.
func GetByID[T any](ctx context.Context, q sqlx.QueryerContext, table string, id any, notFoundErr error) (*T, error) {
	var entity T
	if err := sqlx.GetContext(ctx, q, &entity, "SELECT * FROM "+table+" WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("%s: get %w", table, err)
	}
	return &entity, nil
}

// LockByID читает строку в dest под FOR UPDATE. Вызывать только внутри WithTransaction.
func LockByID(ctx context.Context, tx *sqlx.Tx, dest any, table string, id any, notFoundErr error) error {
	if err := tx.GetContext(ctx, dest, "SELECT * FROM "+table+" WHERE id = $1 FOR UPDATE", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundErr
		}
		return fmt.Errorf("%s: lock %w", table, err)
	}
	return nil
}

// BatchInserter копит строки и вставляет их одним INSERT ... VALUES на пачку.
type BatchInserter struct {
	exec      sqlx.ExecerContext
	prefix    string
	columns   int
	batchSize int
	args      []any
	rows      int
}

// NewBatchInserter: prefix - "INSERT INTO t (a, b, c)", columns - число колонок.
func NewBatchInserter(exec sqlx.ExecerContext, prefix string, columns, batchSize int) *BatchInserter {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BatchInserter{
		exec:      exec,
		prefix:    prefix,
		columns:   columns,
		batchSize: batchSize,
		args:      make([]any, 0, columns*batchSize),
	}
}

// Add добавляет строку; полная пачка уходит в базу сразу.
func (b *BatchInserter) Add(ctx context.Context, row ...any) error {
	if len(row) != b.columns {
		return fmt.Errorf("batch insert: ожидалось %d значений, получено %d", b.columns, len(row))
	}
	b.args = append(b.args, row...)
	b.rows++
	if b.rows >= b.batchSize {
		return b.Flush(ctx)
	}
	return nil
}

// Flush вставляет накопленные строки.
func (b *BatchInserter) Flush(ctx context.Context) error {
	if b.rows == 0 {
		return nil
	}

	var query strings.Builder
	query.WriteString(b.prefix)
	query.WriteString(" VALUES ")
	n := 1
	for i := 0; i < b.rows; i++ {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteByte('(')
		for j := 0; j < b.columns; j++ {
			if j > 0 {
				query.WriteString(", ")
			}
			query.WriteByte('$')
			query.WriteString(strconv.Itoa(n))
			n++
		}
		query.WriteByte(')')
	}

	if _, err := b.exec.ExecContext(ctx, query.String(), b.args...); err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}
	b.args = b.args[:0]
	b.rows = 0
	return nil
}

// WithTransaction выполняет fn в транзакции. Любая ошибка fn, включая ErrNoChange,
// откатывает транзакцию и возвращается как есть.
func WithTransaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
