package logger

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Log - глобальный логгер. До вызова Init пишет в stderr с уровнем info.
var Log = logrus.New()

// Init инициализирует структурированный логгер.
func Init(level string) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// Используем JSON формат для production, text для development
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// Money возвращает запись с полями денежной операции: сделка, сумма, операция.
// Любой сбой, затрагивающий деньги, логируется через неё.
func Money(saleID string, amount decimal.Decimal, operation string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"sale_id":   saleID,
		"amount":    amount.StringFixed(2),
		"operation": operation,
	})
}
