// Package catalog holds the static definitions of purchasable cosmetics and
// credit packs. The catalog is loaded once at startup and is read-only.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"portfolio_backend/internal/domain"
)

//go:embed default_catalog.json
var defaultCatalog []byte

var (
	ErrItemNotFound = errors.New("catalog item not found")
	ErrPackNotFound = errors.New("credit pack not found")
)

// Catalog is an immutable lookup of items and credit packs.
type Catalog struct {
	currency  string
	items     []domain.CatalogItem
	itemIndex map[string]int
	packs     []domain.CreditPack
	packIndex map[string]int
}

type file struct {
	Currency    string               `json:"currency"`
	Items       []domain.CatalogItem `json:"items"`
	CreditPacks []domain.CreditPack  `json:"credit_packs"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path loads the embedded default.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates catalog JSON.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f.Currency, f.Items, f.CreditPacks)
}

// New builds a catalog from already decoded entries.
func New(currency string, items []domain.CatalogItem, packs []domain.CreditPack) (*Catalog, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "INR"
	}

	c := &Catalog{
		currency:  currency,
		items:     make([]domain.CatalogItem, 0, len(items)),
		itemIndex: make(map[string]int, len(items)),
		packs:     make([]domain.CreditPack, 0, len(packs)),
		packIndex: make(map[string]int, len(packs)),
	}

	for _, it := range items {
		if it.ID == "" {
			return nil, errors.New("catalog item id is required")
		}
		if _, dup := c.itemIndex[it.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog item %q", it.ID)
		}
		if !it.Category.Valid() {
			return nil, fmt.Errorf("catalog item %q: unknown category %q", it.ID, it.Category)
		}
		if it.CreditPrice != nil && *it.CreditPrice < 0 {
			return nil, fmt.Errorf("catalog item %q: negative credit price", it.ID)
		}
		if it.RealMoneyPrice != nil && !it.RealMoneyPrice.IsPositive() {
			return nil, fmt.Errorf("catalog item %q: real money price must be positive", it.ID)
		}
		c.itemIndex[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}

	for _, p := range packs {
		if p.ID == "" {
			return nil, errors.New("credit pack id is required")
		}
		if _, dup := c.packIndex[p.ID]; dup {
			return nil, fmt.Errorf("duplicate credit pack %q", p.ID)
		}
		if _, clash := c.itemIndex[p.ID]; clash {
			return nil, fmt.Errorf("credit pack %q clashes with an item id", p.ID)
		}
		if p.Credits <= 0 {
			return nil, fmt.Errorf("credit pack %q: credits must be positive", p.ID)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("credit pack %q: price must be positive", p.ID)
		}
		c.packIndex[p.ID] = len(c.packs)
		c.packs = append(c.packs, p)
	}

	return c, nil
}

// Currency is the ISO code real-money prices are expressed in.
func (c *Catalog) Currency() string { return c.currency }

// Resolve returns the item with id.
func (c *Catalog) Resolve(id string) (domain.CatalogItem, error) {
	i, ok := c.itemIndex[id]
	if !ok {
		return domain.CatalogItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return c.items[i], nil
}

// ResolvePack returns the credit pack with id.
func (c *Catalog) ResolvePack(id string) (domain.CreditPack, error) {
	i, ok := c.packIndex[id]
	if !ok {
		return domain.CreditPack{}, fmt.Errorf("%w: %s", ErrPackNotFound, id)
	}
	return c.packs[i], nil
}

// Items lists items in configuration order.
func (c *Catalog) Items() []domain.CatalogItem {
	out := make([]domain.CatalogItem, len(c.items))
	copy(out, c.items)
	return out
}

// Packs lists credit packs in configuration order.
func (c *Catalog) Packs() []domain.CreditPack {
	out := make([]domain.CreditPack, len(c.packs))
	copy(out, c.packs)
	return out
}

// ItemPrice converts an item's real-money price into minor units.
func (c *Catalog) ItemPrice(it domain.CatalogItem) (domain.Money, bool) {
	if it.RealMoneyPrice == nil {
		return domain.Money{}, false
	}
	return domain.Money{Amount: domain.MinorUnits(*it.RealMoneyPrice), Currency: c.currency}, true
}

// PackPrice converts a credit pack price into minor units.
func (c *Catalog) PackPrice(p domain.CreditPack) domain.Money {
	return domain.Money{Amount: domain.MinorUnits(p.Price), Currency: c.currency}
}
