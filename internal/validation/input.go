package validation

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

// Ограничения на свободный текст, который пользователи и администраторы пишут в заказы и счета.
const (
	MinDisputeDescriptionLength = models.MinDisputeDescriptionLength
	MaxDisputeDescriptionLength = 5000
	MaxReasonLength             = 500
	MaxResolutionNoteLength     = 2000
	MaxPaymentMethodLength      = 50
	MaxPaymentReferenceLength   = 200
	MaxLineDescriptionLength    = 300
)

// ValidateLength проверяет длину строки в символах после обрезки пробелов.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(strings.TrimSpace(value))
	if min > 0 && length < min {
		return apperror.Validation(fieldName + " должно быть не короче " + strconv.Itoa(min) + " символов")
	}
	if max > 0 && length > max {
		return apperror.Validation(fieldName + " должно быть не длиннее " + strconv.Itoa(max) + " символов")
	}
	return nil
}

// ValidateDisputeDescription - описание претензии покупателя.
func ValidateDisputeDescription(description string) error {
	return ValidateLength("описание спора", description, MinDisputeDescriptionLength, MaxDisputeDescriptionLength)
}

// ValidateReason - причина действия администратора или продавца.
func ValidateReason(reason string, required bool) error {
	min := 0
	if required {
		min = 1
	}
	return ValidateLength("причина", reason, min, MaxReasonLength)
}

// ValidateResolutionNote - комментарий к решению по спору.
func ValidateResolutionNote(note string) error {
	return ValidateLength("комментарий к решению", note, 0, MaxResolutionNoteLength)
}

// ValidatePayment - реквизиты оплаты счёта.
func ValidatePayment(method, reference string) error {
	if err := ValidateLength("способ оплаты", method, 1, MaxPaymentMethodLength); err != nil {
		return err
	}
	return ValidateLength("референс платежа", reference, 0, MaxPaymentReferenceLength)
}

// ValidateLineDescription - описание строки счёта.
func ValidateLineDescription(description string) error {
	return ValidateLength("описание строки счёта", description, 0, MaxLineDescriptionLength)
}
