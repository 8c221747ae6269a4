package common

import "errors"

// ErrNoChange возвращает колбэк транзакции, когда изменение уже применено:
// транзакция откатывается, а вызывающий получает текущее состояние без ошибки.
var ErrNoChange = errors.New("no change")
