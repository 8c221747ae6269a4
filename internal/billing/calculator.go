// Package billing считает комиссию площадки, НДС и итог счёта со швейцарским
// округлением. Пакет не имеет побочных эффектов и не ходит в базу.
package billing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

// LineItem - строка счёта до расчёта.
type LineItem struct {
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Line - строка счёта с посчитанной суммой.
type Line struct {
	LineItem
	LineTotal decimal.Decimal
}

// Totals - результат расчёта счёта.
type Totals struct {
	Lines     []Line
	Subtotal  decimal.Decimal
	VATRate   decimal.Decimal
	VATAmount decimal.Decimal
	Total     decimal.Decimal
}

// ComputeInvoice считает subtotal, НДС (half-up до 0.01) и итог,
// округлённый вверх до 0.05.
func ComputeInvoice(items []LineItem, vatRate decimal.Decimal) (*Totals, error) {
	if len(items) == 0 {
		return nil, apperror.Validation("счёт должен содержать хотя бы одну позицию")
	}
	if vatRate.IsNegative() {
		return nil, apperror.Validation("ставка НДС не может быть отрицательной")
	}

	totals := &Totals{
		Lines:    make([]Line, 0, len(items)),
		Subtotal: decimal.Zero,
		VATRate:  vatRate,
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, apperror.Validation("количество должно быть положительным")
		}
		if item.UnitPrice.IsNegative() {
			return nil, apperror.Validation("цена позиции не может быть отрицательной")
		}

		lineTotal := valueobject.Round2(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		totals.Lines = append(totals.Lines, Line{LineItem: item, LineTotal: lineTotal})
		totals.Subtotal = totals.Subtotal.Add(lineTotal)
	}

	totals.VATAmount = valueobject.Round2(totals.Subtotal.Mul(vatRate))
	totals.Total = valueobject.RoundUpToRappen(totals.Subtotal.Add(totals.VATAmount))

	return totals, nil
}

// Commission - комиссия площадки: max(цена * ставка, минимальная комиссия).
func Commission(salePrice, rate, minimum decimal.Decimal) (decimal.Decimal, error) {
	if salePrice.IsNegative() || rate.IsNegative() || minimum.IsNegative() {
		return decimal.Zero, apperror.Validation("параметры комиссии не могут быть отрицательными")
	}

	fee := valueobject.Round2(salePrice.Mul(rate))
	return decimal.Max(fee, minimum), nil
}

// PayoutFee - сбор за проведение платежа, удерживаемый из выплаты продавцу.
// Никогда не превышает цену товара.
func PayoutFee(itemPrice, rate, fixed decimal.Decimal) (decimal.Decimal, error) {
	if itemPrice.IsNegative() || rate.IsNegative() || fixed.IsNegative() {
		return decimal.Zero, apperror.Validation("параметры сбора не могут быть отрицательными")
	}

	fee := valueobject.Round2(itemPrice.Mul(rate)).Add(fixed)
	return decimal.Min(fee, itemPrice), nil
}

// FromFloat переводит внешнее значение в decimal, отбрасывая NaN и бесконечности.
func FromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, apperror.Validation("значение должно быть конечным числом")
	}
	return decimal.NewFromFloat(v), nil
}
