package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/marketplace-backend/internal/db"
	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var (
	// ErrInvoiceNotFound возвращается, когда счёт не найден.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrInvoiceAlreadyExists - счёт на комиссию по сделке уже выставлен.
	ErrInvoiceAlreadyExists = errors.New("commission invoice already exists")
)

const commissionInvoiceConstraint = "uq_invoices_commission_sale"

// FormatInvoiceNumber собирает номер вида PREFIX-YYYY-NNN.
func FormatInvoiceNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%03d", prefix, year, seq)
}

// InvoiceRepository отвечает за счета, их строки и нумерацию.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository создаёт экземпляр репозитория.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create присваивает счёту номер и сохраняет его со строками в одной транзакции.
// Счётчик номеров живёт в той же транзакции, поэтому откат не оставляет дыр в нумерации.
// promotionIDs отмечаются выставленными, чтобы не попасть в следующий счёт.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice, prefix string, promotionIDs []uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		year := invoice.IssuedAt.Year()

		var seq int64
		if err := tx.GetContext(ctx, &seq, `
			INSERT INTO invoice_sequences (prefix, year, last_value)
			VALUES ($1, $2, 1)
			ON CONFLICT (prefix, year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
			RETURNING last_value
		`, prefix, year); err != nil {
			return fmt.Errorf("invoice repository: next number %w", err)
		}
		invoice.InvoiceNumber = FormatInvoiceNumber(prefix, year, seq)

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO invoices (
				id, invoice_number, kind, seller_id, sale_id, currency, subtotal, vat_rate,
				vat_amount, total, status, issued_at, due_date, created_at, updated_at
			) VALUES (
				:id, :invoice_number, :kind, :seller_id, :sale_id, :currency, :subtotal, :vat_rate,
				:vat_amount, :total, :status, :issued_at, :due_date, :created_at, :updated_at
			)
		`, invoice); err != nil {
			if db.IsUniqueViolation(err, commissionInvoiceConstraint) {
				return ErrInvoiceAlreadyExists
			}
			return fmt.Errorf("invoice repository: insert %w", err)
		}

		inserter := common.NewBatchInserter(tx,
			`INSERT INTO invoice_items (id, invoice_id, position, description, quantity, unit_price, line_total)`, 7, 100)
		for i := range invoice.Items {
			item := &invoice.Items[i]
			item.InvoiceID = invoice.ID
			item.Position = i + 1
			if err := inserter.Add(ctx, item.ID, item.InvoiceID, item.Position, item.Description, item.Quantity, item.UnitPrice, item.LineTotal); err != nil {
				return fmt.Errorf("invoice repository: items %w", err)
			}
		}
		if err := inserter.Flush(ctx); err != nil {
			return fmt.Errorf("invoice repository: items %w", err)
		}

		if len(promotionIDs) > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE listing_promotions SET invoiced_at = $2 WHERE id = ANY($1)
			`, pq.Array(promotionIDs), invoice.IssuedAt); err != nil {
				return fmt.Errorf("invoice repository: mark promotions %w", err)
			}
		}
		return nil
	})
}

// GetByID возвращает счёт со строками.
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	invoice, err := common.GetByID[models.Invoice](ctx, r.db, "invoices", id, ErrInvoiceNotFound)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// GetCommissionBySale возвращает счёт на комиссию по сделке.
func (r *InvoiceRepository) GetCommissionBySale(ctx context.Context, saleID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, `
		SELECT * FROM invoices WHERE sale_id = $1 AND kind = 'commission'
	`, saleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("invoice repository: get by sale %w", err)
	}
	if err := r.loadItems(ctx, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// List возвращает счета продавца (или все, если sellerID пуст) с фильтром по статусу.
func (r *InvoiceRepository) List(ctx context.Context, sellerID *uuid.UUID, status valueobject.InvoiceStatus, limit, offset int) ([]models.Invoice, error) {
	query := `SELECT * FROM invoices WHERE ($1::uuid IS NULL OR seller_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY issued_at DESC LIMIT $3 OFFSET $4`

	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, sellerID, string(status), limit, offset); err != nil {
		return nil, fmt.Errorf("invoice repository: list %w", err)
	}
	return invoices, nil
}

// Update блокирует счёт, применяет fn и сохраняет статусные поля.
func (r *InvoiceRepository) Update(ctx context.Context, id uuid.UUID, fn func(*models.Invoice) error) (*models.Invoice, error) {
	var invoice models.Invoice
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := common.LockByID(ctx, tx, &invoice, "invoices", id, ErrInvoiceNotFound); err != nil {
			return err
		}

		if err := fn(&invoice); err != nil {
			return err
		}

		if _, err := tx.NamedExecContext(ctx, `
			UPDATE invoices SET
				status = :status,
				paid_at = :paid_at,
				payment_method = :payment_method,
				payment_reference = :payment_reference,
				cancel_reason = :cancel_reason,
				updated_at = :updated_at
			WHERE id = :id
		`, &invoice); err != nil {
			return fmt.Errorf("invoice repository: update %w", err)
		}
		return nil
	})
	if errors.Is(err, common.ErrNoChange) {
		return &invoice, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ListOverdueCandidates возвращает ожидающие оплаты счета с истёкшим сроком.
func (r *InvoiceRepository) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM invoices WHERE status = 'pending' AND due_date < $1
		ORDER BY due_date ASC LIMIT $2
	`, now, limit); err != nil {
		return nil, fmt.Errorf("invoice repository: list overdue %w", err)
	}
	return ids, nil
}

// CountOverdue считает просроченные счета продавца.
func (r *InvoiceRepository) CountOverdue(ctx context.Context, sellerID uuid.UUID) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM invoices WHERE seller_id = $1 AND status = 'overdue'
	`, sellerID); err != nil {
		return 0, fmt.Errorf("invoice repository: count overdue %w", err)
	}
	return count, nil
}

func (r *InvoiceRepository) loadItems(ctx context.Context, invoice *models.Invoice) error {
	if err := r.db.SelectContext(ctx, &invoice.Items, `
		SELECT * FROM invoice_items WHERE invoice_id = $1 ORDER BY position ASC
	`, invoice.ID); err != nil {
		return fmt.Errorf("invoice repository: load items %w", err)
	}
	return nil
}
