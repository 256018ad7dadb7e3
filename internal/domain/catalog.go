package domain

import "github.com/shopspring/decimal"

// Category groups catalog items by the profile asset they unlock.
type Category string

const (
	CategoryVideo  Category = "video"
	CategoryMusic  Category = "music"
	CategoryEffect Category = "effect"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryVideo, CategoryMusic, CategoryEffect:
		return true
	}
	return false
}

// CatalogItem is a purchasable cosmetic. Items are configuration, never
// mutated at runtime.
type CatalogItem struct {
	ID             string           `json:"id"`
	DisplayName    string           `json:"display_name"`
	Category       Category         `json:"category"`
	CreditPrice    *int64           `json:"credit_price,omitempty"`
	RealMoneyPrice *decimal.Decimal `json:"real_money_price,omitempty"`
	Locked         bool             `json:"locked"`
}

// Free reports whether the item can be used without owning it.
func (i CatalogItem) Free() bool {
	if !i.Locked {
		return true
	}
	return (i.CreditPrice == nil || *i.CreditPrice == 0) && i.RealMoneyPrice == nil
}

// Credits returns the credit price, or 0 when the item has none.
func (i CatalogItem) Credits() int64 {
	if i.CreditPrice == nil {
		return 0
	}
	return *i.CreditPrice
}

// CreditPack converts real money into credits.
type CreditPack struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	Credits     int64           `json:"credits"`
	Price       decimal.Decimal `json:"price"`
}

// Money is an amount in the currency's minor unit (paise, cents).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// MinorUnits converts a major-unit decimal price into minor units, rounding
// half away from zero at two decimal places.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Round(2).Shift(2).IntPart()
}

// MajorUnits is the inverse of MinorUnits.
func MajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
