package models

import "github.com/shopspring/decimal"

// MiniAppCategory - раздел каталога
type MiniAppCategory string

const (
	CategoryPopular MiniAppCategory = "popular"
	CategoryLab     MiniAppCategory = "lab"
	CategoryLibrary MiniAppCategory = "library"
)

// MiniApp описывает мини-приложение из каталога
type MiniApp struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    MiniAppCategory `json:"category"`
}

// CoinPlan - пакет монет, доступный для покупки
type CoinPlan struct {
	ID       string          `json:"id"`
	Coins    int64           `json:"coins"`
	Bonus    int64           `json:"bonus"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Popular  bool            `json:"popular"`
}

// TotalCoins возвращает количество монет с учётом бонуса
func (p CoinPlan) TotalCoins() int64 {
	return p.Coins + p.Bonus
}

// PriceDisplay форматирует цену для показа пользователю, например "R$ 25.00"
func (p CoinPlan) PriceDisplay() string {
	symbol := p.Currency
	if p.Currency == "BRL" {
		symbol = "R$"
	}
	return symbol + " " + p.Price.StringFixed(2)
}

// PricePerCoin - цена одной монеты с учётом бонуса, округлённая до копеек
func (p CoinPlan) PricePerCoin() decimal.Decimal {
	total := p.TotalCoins()
	if total <= 0 {
		return decimal.Zero
	}
	return p.Price.Div(decimal.NewFromInt(total)).Round(2)
}
