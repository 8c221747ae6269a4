package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FeeSchedule - тарифы площадки: комиссия, НДС, сбор за выплату и цены платных опций.
type FeeSchedule struct {
	CommissionRate    decimal.Decimal
	MinimumCommission decimal.Decimal
	VATRate           decimal.Decimal
	InvoicePrefix     string
	PayoutFeeRate     decimal.Decimal
	PayoutFeeFixed    decimal.Decimal
	Promotions        map[string]decimal.Decimal
}

// feeFile - формат YAML-файла тарифов. Суммы задаются строками, чтобы не проходить через float.
type feeFile struct {
	Commission struct {
		Rate    string `yaml:"rate"`
		Minimum string `yaml:"minimum"`
	} `yaml:"commission"`
	VATRate       string `yaml:"vat_rate"`
	InvoicePrefix string `yaml:"invoice_prefix"`
	PayoutFee     struct {
		Rate  string `yaml:"rate"`
		Fixed string `yaml:"fixed"`
	} `yaml:"payout_fee"`
	Promotions map[string]string `yaml:"promotions"`
}

// DefaultFeeSchedule - тарифы по умолчанию.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		CommissionRate:    decimal.RequireFromString("0.09"),
		MinimumCommission: decimal.RequireFromString("1.00"),
		VATRate:           decimal.RequireFromString("0.081"),
		InvoicePrefix:     "INV",
		PayoutFeeRate:     decimal.Zero,
		PayoutFeeFixed:    decimal.Zero,
		Promotions: map[string]decimal.Decimal{
			"boost":     decimal.RequireFromString("5.00"),
			"highlight": decimal.RequireFromString("3.00"),
			"top_slot":  decimal.RequireFromString("12.00"),
		},
	}
}

// LoadFeeSchedule читает тарифы из YAML. Пустой путь означает тарифы по умолчанию,
// незаданные в файле поля тоже берутся из умолчаний.
func LoadFeeSchedule(path string) (FeeSchedule, error) {
	schedule := DefaultFeeSchedule()
	if path == "" {
		return schedule, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("config: не удалось прочитать тарифы %s: %w", path, err)
	}
	return ParseFeeSchedule(raw)
}

// ParseFeeSchedule разбирает YAML тарифов поверх значений по умолчанию.
func ParseFeeSchedule(raw []byte) (FeeSchedule, error) {
	schedule := DefaultFeeSchedule()

	var file feeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return FeeSchedule{}, fmt.Errorf("config: некорректный YAML тарифов: %w", err)
	}

	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"commission.rate", file.Commission.Rate, &schedule.CommissionRate},
		{"commission.minimum", file.Commission.Minimum, &schedule.MinimumCommission},
		{"vat_rate", file.VATRate, &schedule.VATRate},
		{"payout_fee.rate", file.PayoutFee.Rate, &schedule.PayoutFeeRate},
		{"payout_fee.fixed", file.PayoutFee.Fixed, &schedule.PayoutFeeFixed},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		v, err := parseNonNegative(f.name, f.value)
		if err != nil {
			return FeeSchedule{}, err
		}
		*f.dst = v
	}

	if file.InvoicePrefix != "" {
		schedule.InvoicePrefix = file.InvoicePrefix
	}

	for kind, price := range file.Promotions {
		v, err := parseNonNegative("promotions."+kind, price)
		if err != nil {
			return FeeSchedule{}, err
		}
		schedule.Promotions[kind] = v
	}

	return schedule, nil
}

func parseNonNegative(name, value string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", name, err)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("config: %s не может быть отрицательным", name)
	}
	return v, nil
}
