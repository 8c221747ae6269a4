package valueobject

import (
	"github.com/shopspring/decimal"
)

// CurrencyCHF - единственная валюта площадки.
const CurrencyCHF = "CHF"

var (
	rappenStep = decimal.NewFromInt(20)
	hundred    = decimal.NewFromInt(100)
)

// Round2 округляет до сантима по правилу half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundUpToRappen - Rappenrundung: всегда вверх до ближайших 0.05, ceil(x*20)/20.
func RoundUpToRappen(d decimal.Decimal) decimal.Decimal {
	return d.Mul(rappenStep).Ceil().Div(rappenStep).Round(2)
}

// ToCents переводит сумму в минимальные единицы для платёжного провайдера.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}
