package payout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// Sandbox - провайдер для разработки и тестов: деньги не двигаются, идентификаторы
// детерминированы ключом идемпотентности. Счета с префиксом "acct_pending" считаются
// не прошедшими подключение.
type Sandbox struct {
	mu        sync.Mutex
	transfers map[string]TransferRequest
	refunds   map[string]RefundRequest
}

// NewSandbox создаёт пустую песочницу.
func NewSandbox() *Sandbox {
	return &Sandbox{
		transfers: make(map[string]TransferRequest),
		refunds:   make(map[string]RefundRequest),
	}
}

func (s *Sandbox) Transfer(_ context.Context, req TransferRequest) (*TransferResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transfers[req.IdempotencyKey]; !ok {
		s.transfers[req.IdempotencyKey] = req
	}
	return &TransferResult{TransferID: "tr_sbx_" + digest(req.IdempotencyKey)}, nil
}

func (s *Sandbox) Refund(_ context.Context, req RefundRequest) (*RefundResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refunds[req.IdempotencyKey]; !ok {
		s.refunds[req.IdempotencyKey] = req
	}
	return &RefundResult{RefundID: "re_sbx_" + digest(req.IdempotencyKey)}, nil
}

func (s *Sandbox) AccountStatus(_ context.Context, accountID string) (*AccountStatus, error) {
	ready := accountID != "" && !strings.HasPrefix(accountID, "acct_pending")
	return &AccountStatus{PayoutsEnabled: ready, DetailsSubmitted: ready}, nil
}

// TransferCount - число уникальных переводов (по ключам идемпотентности).
func (s *Sandbox) TransferCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transfers)
}

// RefundCount - число уникальных возвратов.
func (s *Sandbox) RefundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refunds)
}

func digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
