package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/db"
	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var (
	// ErrSaleNotFound возвращается, когда сделка не найдена.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrListingAlreadySold - по объявлению уже есть действующая сделка.
	ErrListingAlreadySold = errors.New("listing already has an active sale")
)

const activeSaleConstraint = "uq_sales_active_listing"

// TransitionMeta описывает, кто и какое действие выполняет над сделкой. Пишется в sale_events.
type TransitionMeta struct {
	ActorID *uuid.UUID
	Action  string
	Payload map[string]any
}

// SaleRepository отвечает за таблицы sales и sale_events.
type SaleRepository struct {
	db *sqlx.DB
}

// NewSaleRepository создаёт экземпляр репозитория.
func NewSaleRepository(db *sqlx.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// GetByID возвращает сделку по идентификатору.
func (r *SaleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	if err := r.db.GetContext(ctx, &sale, `SELECT * FROM sales WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("sale repository: get by id %w", err)
	}
	return &sale, nil
}

// GetByPaymentIntent ищет сделку по идентификатору платежа провайдера.
func (r *SaleRepository) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Sale, error) {
	var sale models.Sale
	if err := r.db.GetContext(ctx, &sale, `SELECT * FROM sales WHERE stripe_payment_intent_id = $1`, paymentIntentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("sale repository: get by payment intent %w", err)
	}
	return &sale, nil
}

// Transition блокирует строку сделки, применяет fn и сохраняет результат вместе с записью журнала.
// Ошибка из fn откатывает транзакцию; common.ErrNoChange откатывает её без ошибки.
// fn может уточнить meta: запись журнала формируется после него.
func (r *SaleRepository) Transition(ctx context.Context, id uuid.UUID, meta *TransitionMeta, fn func(*models.Sale) error) (*models.Sale, error) {
	if meta == nil {
		meta = &TransitionMeta{}
	}
	var sale models.Sale
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := common.LockByID(ctx, tx, &sale, "sales", id, ErrSaleNotFound); err != nil {
			return err
		}

		oldStatus := sale.PaymentStatus
		if err := fn(&sale); err != nil {
			return err
		}

		if err := updateSale(ctx, tx, &sale); err != nil {
			return err
		}
		return insertSaleEvent(ctx, tx, sale.ID, *meta, oldStatus, sale.PaymentStatus, sale.UpdatedAt)
	})
	if errors.Is(err, common.ErrNoChange) {
		return &sale, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// ListAutoReleaseEligible возвращает сделки, срок автовыплаты которых наступил.
// paidBefore (если задан) дополнительно требует, чтобы оплата была не позже этого момента.
func (r *SaleRepository) ListAutoReleaseEligible(ctx context.Context, now time.Time, paidBefore *time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `SELECT id FROM sales WHERE ` + autoReleaseCondition + ` ORDER BY auto_release_at ASC LIMIT $3`
	if err := r.db.SelectContext(ctx, &ids, query, now, paidBefore, limit); err != nil {
		return nil, fmt.Errorf("sale repository: list auto release %w", err)
	}
	return ids, nil
}

// CountAutoReleaseEligible считает сделки, готовые к автовыплате.
func (r *SaleRepository) CountAutoReleaseEligible(ctx context.Context, now time.Time, paidBefore *time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM sales WHERE ` + autoReleaseCondition
	if err := r.db.GetContext(ctx, &count, query, now, paidBefore); err != nil {
		return 0, fmt.Errorf("sale repository: count auto release %w", err)
	}
	return count, nil
}

const autoReleaseCondition = `
	payment_status IN ('paid', 'release_pending')
	AND released_at IS NULL
	AND buyer_confirmed_receipt = FALSE
	AND dispute_status NOT IN ('opened', 'under_review')
	AND auto_release_at IS NOT NULL
	AND auto_release_at <= $1
	AND ($2::timestamptz IS NULL OR paid_at <= $2)
`

// ListPendingPayouts возвращает сделки, выплату по которым пора повторить: продавец
// закончил подключение счёта, либо покупатель подтвердил получение, а перевод не прошёл.
func (r *SaleRepository) ListPendingPayouts(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `
		SELECT s.id FROM sales s
		JOIN users u ON u.id = s.seller_id
		WHERE s.released_at IS NULL
		  AND (
		    (s.payment_status = 'release_pending_onboarding'
		      AND u.payouts_enabled = TRUE AND u.stripe_account_id IS NOT NULL)
		    OR (s.payment_status = 'release_pending'
		      AND s.buyer_confirmed_receipt = TRUE
		      AND s.dispute_status NOT IN ('opened', 'under_review'))
		  )
		ORDER BY s.updated_at ASC
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("sale repository: list pending payouts %w", err)
	}
	return ids, nil
}

// ListDisputes возвращает сделки со спорами. Пустой статус - все, кроме none.
func (r *SaleRepository) ListDisputes(ctx context.Context, status valueobject.DisputeStatus, limit, offset int) ([]models.Sale, error) {
	query := `SELECT * FROM sales WHERE dispute_status <> 'none'`
	args := []interface{}{}
	if status != "" {
		query = `SELECT * FROM sales WHERE dispute_status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY dispute_opened_at DESC NULLS LAST LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var sales []models.Sale
	if err := r.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, fmt.Errorf("sale repository: list disputes %w", err)
	}
	return sales, nil
}

// ListEvents возвращает журнал переходов сделки в хронологическом порядке.
func (r *SaleRepository) ListEvents(ctx context.Context, saleID uuid.UUID) ([]models.SaleEvent, error) {
	var events []models.SaleEvent
	if err := r.db.SelectContext(ctx, &events, `SELECT * FROM sale_events WHERE sale_id = $1 ORDER BY created_at ASC`, saleID); err != nil {
		return nil, fmt.Errorf("sale repository: list events %w", err)
	}
	return events, nil
}

// insertSale создаёт сделку в рамках транзакции. Нарушение уникального индекса
// активной сделки превращается в ErrListingAlreadySold.
func insertSale(ctx context.Context, tx *sqlx.Tx, sale *models.Sale, actorID *uuid.UUID) error {
	query := `
		INSERT INTO sales (
			id, listing_id, buyer_id, seller_id, item_price, platform_fee, total_amount,
			payment_status, dispute_status, created_at, updated_at
		) VALUES (
			:id, :listing_id, :buyer_id, :seller_id, :item_price, :platform_fee, :total_amount,
			:payment_status, :dispute_status, :created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, sale); err != nil {
		if db.IsUniqueViolation(err, activeSaleConstraint) {
			return ErrListingAlreadySold
		}
		return fmt.Errorf("sale repository: insert %w", err)
	}

	meta := TransitionMeta{ActorID: actorID, Action: models.SaleActionCreated}
	return insertSaleEvent(ctx, tx, sale.ID, meta, sale.PaymentStatus, sale.PaymentStatus, sale.CreatedAt)
}

func updateSale(ctx context.Context, tx *sqlx.Tx, sale *models.Sale) error {
	query := `
		UPDATE sales SET
			payment_status = :payment_status,
			dispute_status = :dispute_status,
			buyer_confirmed_receipt = :buyer_confirmed_receipt,
			paid_at = :paid_at,
			auto_release_at = :auto_release_at,
			released_at = :released_at,
			refunded_at = :refunded_at,
			cancelled_at = :cancelled_at,
			stripe_charge_id = :stripe_charge_id,
			stripe_payment_intent_id = :stripe_payment_intent_id,
			stripe_transfer_id = :stripe_transfer_id,
			stripe_refund_id = :stripe_refund_id,
			hold_reason = :hold_reason,
			dispute_reason = :dispute_reason,
			dispute_description = :dispute_description,
			dispute_resolution = :dispute_resolution,
			dispute_opened_at = :dispute_opened_at,
			dispute_resolved_at = :dispute_resolved_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := tx.NamedExecContext(ctx, query, sale); err != nil {
		return fmt.Errorf("sale repository: update %w", err)
	}
	return nil
}

func insertSaleEvent(ctx context.Context, tx *sqlx.Tx, saleID uuid.UUID, meta TransitionMeta, oldStatus, newStatus valueobject.PaymentStatus, at time.Time) error {
	// jsonb передаём строкой: []byte драйвер отправил бы как bytea.
	var payload sql.NullString
	if len(meta.Payload) > 0 {
		raw, err := json.Marshal(meta.Payload)
		if err != nil {
			return fmt.Errorf("sale repository: marshal event payload %w", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO sale_events (sale_id, actor_id, action, old_status, new_status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, saleID, meta.ActorID, meta.Action, oldStatus, newStatus, payload, at)
	if err != nil {
		return fmt.Errorf("sale repository: insert event %w", err)
	}
	return nil
}
