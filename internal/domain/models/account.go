package models

import "time"

// Account - кошелёк пользователя (или устройства в локальном режиме)
type Account struct {
	ID      string
	Balance int64
	// LastDailyRewardDate - календарный день последнего бонуса в формате 2006-01-02
	LastDailyRewardDate *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AppUsage - счётчик открытий мини-приложения для аккаунта
type AppUsage struct {
	AccountID  string
	AppID      string
	UsageCount int
	UpdatedAt  time.Time
}
