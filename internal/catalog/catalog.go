// Package catalog хранит справочник мини-приложений и пакетов монет.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/linemk/lookbox-ledger/internal/domain/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	ErrAppNotFound  = errors.New("mini-app not found")
	ErrPlanNotFound = errors.New("coin plan not found")
)

//go:embed catalog.yaml
var defaultCatalog []byte

type appEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

type planEntry struct {
	ID      string `yaml:"id"`
	Coins   int64  `yaml:"coins"`
	Bonus   int64  `yaml:"bonus"`
	Price   string `yaml:"price"` // строкой, чтобы не терять точность
	Popular bool   `yaml:"popular"`
}

type file struct {
	Currency string      `yaml:"currency"`
	Apps     []appEntry  `yaml:"apps"`
	Plans    []planEntry `yaml:"plans"`
}

// Catalog - неизменяемый справочник, порядок элементов как в исходном файле
type Catalog struct {
	apps    []models.MiniApp
	plans   []models.CoinPlan
	appIdx  map[string]int
	planIdx map[string]int
}

// Default возвращает встроенный каталог.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load читает каталог из файла. Пустой путь означает встроенный каталог.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if f.Currency == "" {
		f.Currency = "BRL"
	}

	c := &Catalog{
		appIdx:  make(map[string]int, len(f.Apps)),
		planIdx: make(map[string]int, len(f.Plans)),
	}

	for _, a := range f.Apps {
		if a.ID == "" {
			return nil, fmt.Errorf("app: id is required")
		}
		if _, dup := c.appIdx[a.ID]; dup {
			return nil, fmt.Errorf("app %q: duplicate id", a.ID)
		}
		category := models.MiniAppCategory(a.Category)
		switch category {
		case models.CategoryPopular, models.CategoryLab, models.CategoryLibrary:
		default:
			return nil, fmt.Errorf("app %q: unknown category %q", a.ID, a.Category)
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		c.appIdx[a.ID] = len(c.apps)
		c.apps = append(c.apps, models.MiniApp{
			ID:          a.ID,
			Name:        name,
			Description: a.Description,
			Category:    category,
		})
	}

	for _, p := range f.Plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan: id is required")
		}
		if _, dup := c.planIdx[p.ID]; dup {
			return nil, fmt.Errorf("plan %q: duplicate id", p.ID)
		}
		if p.Coins <= 0 {
			return nil, fmt.Errorf("plan %q: coins must be positive", p.ID)
		}
		if p.Bonus < 0 {
			return nil, fmt.Errorf("plan %q: bonus must not be negative", p.ID)
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("plan %q: invalid price %q: %w", p.ID, p.Price, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("plan %q: price must be positive", p.ID)
		}
		c.planIdx[p.ID] = len(c.plans)
		c.plans = append(c.plans, models.CoinPlan{
			ID:       p.ID,
			Coins:    p.Coins,
			Bonus:    p.Bonus,
			Price:    price,
			Currency: f.Currency,
			Popular:  p.Popular,
		})
	}

	return c, nil
}

// Apps возвращает копию списка мини-приложений.
func (c *Catalog) Apps() []models.MiniApp {
	return append([]models.MiniApp(nil), c.apps...)
}

func (c *Catalog) App(id string) (models.MiniApp, error) {
	i, ok := c.appIdx[id]
	if !ok {
		return models.MiniApp{}, fmt.Errorf("%w: %q", ErrAppNotFound, id)
	}
	return c.apps[i], nil
}

// Plans возвращает копию списка пакетов монет.
func (c *Catalog) Plans() []models.CoinPlan {
	return append([]models.CoinPlan(nil), c.plans...)
}

func (c *Catalog) Plan(id string) (models.CoinPlan, error) {
	i, ok := c.planIdx[id]
	if !ok {
		return models.CoinPlan{}, fmt.Errorf("%w: %q", ErrPlanNotFound, id)
	}
	return c.plans[i], nil
}
