package market

import (
	"strings"
	"time"

	"cryptostats/config"
)

// Asset is one entry of the catalog: the canonical id plus an optional
// provider id tried when the primary fetch fails.
type Asset struct {
	ID       string
	Fallback string
}

// Catalog is the fixed, ordered set of supported assets. It is read-only after construction.
type Catalog struct {
	assets []Asset
	index  map[string]int
}

// NewCatalog builds a catalog from the given assets, preserving order.
func NewCatalog(assets ...Asset) Catalog {
	c := Catalog{
		assets: make([]Asset, 0, len(assets)),
		index:  make(map[string]int, len(assets)),
	}
	for _, a := range assets {
		if _, dup := c.index[a.ID]; dup {
			continue
		}
		c.index[a.ID] = len(c.assets)
		c.assets = append(c.assets, a)
	}
	return c
}

// CatalogFromConfig converts the configured asset list.
func CatalogFromConfig(cfg []config.AssetConfig) Catalog {
	assets := make([]Asset, 0, len(cfg))
	for _, a := range cfg {
		assets = append(assets, Asset{ID: a.ID, Fallback: a.Fallback})
	}
	return NewCatalog(assets...)
}

// Assets returns a copy of the catalog entries.
func (c Catalog) Assets() []Asset {
	out := make([]Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// IDs returns the canonical ids in catalog order.
func (c Catalog) IDs() []string {
	ids := make([]string, len(c.assets))
	for i, a := range c.assets {
		ids[i] = a.ID
	}
	return ids
}

func (c Catalog) Len() int { return len(c.assets) }

func (c Catalog) Supports(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Lookup returns the catalog entry for id.
func (c Catalog) Lookup(id string) (Asset, bool) {
	i, ok := c.index[id]
	if !ok {
		return Asset{}, false
	}
	return c.assets[i], true
}

// Validate returns a *ValidationError when id is empty or not supported.
func (c Catalog) Validate(id string) error {
	if id == "" {
		return &ValidationError{Missing: true}
	}
	if !c.Supports(id) {
		return &ValidationError{Asset: id, Supported: c.IDs()}
	}
	return nil
}

func (c Catalog) String() string {
	return strings.Join(c.IDs(), ", ")
}

// Prepare checks a snapshot before it is written: the asset must be supported,
// and a zero Timestamp is replaced with now.
func (c Catalog) Prepare(s Snapshot, now time.Time) (Snapshot, error) {
	if err := c.Validate(s.Asset); err != nil {
		return Snapshot{}, err
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}
	return s, nil
}
