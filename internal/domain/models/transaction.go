package models

import "time"

// TransactionKind - тип операции с монетами
type TransactionKind string

const (
	KindPurchase    TransactionKind = "purchase"
	KindDailyReward TransactionKind = "daily_reward"
	KindUsage       TransactionKind = "usage"
	KindBonus       TransactionKind = "bonus"
)

// Valid сообщает, известен ли тип операции.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindPurchase, KindDailyReward, KindUsage, KindBonus:
		return true
	}
	return false
}

// Transaction представляет неизменяемую запись о движении монет.
// Порядок создания восстанавливается по Seq (и по ID - это UUIDv7).
type Transaction struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	AccountID   string          `json:"account_id"`
	Amount      int64           `json:"amount"` // со знаком: + пополнение, - списание
	Kind        TransactionKind `json:"kind"`
	Description string          `json:"description"`
	AppID       *string         `json:"app_id,omitempty"` // только для kind = usage
	CreatedAt   time.Time       `json:"created_at"`
}
