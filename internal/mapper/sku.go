package mapper

import (
	"fmt"
	"sync"
)

// SKUGenerator issues run-unique SKUs: PREFIX-NNNN from the scrape
// sequence, with a numeric suffix appended when a generated value was
// already handed out.
type SKUGenerator struct {
	prefix string
	mu     sync.Mutex
	used   map[string]bool
}

func NewSKUGenerator(prefix string) *SKUGenerator {
	return &SKUGenerator{
		prefix: prefix,
		used:   make(map[string]bool),
	}
}

// For returns the SKU for the given 0-based scrape index.
func (g *SKUGenerator) For(index int) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	sku := fmt.Sprintf("%s-%04d", g.prefix, index+1)
	if !g.used[sku] {
		g.used[sku] = true
		return sku
	}

	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", sku, n)
		if !g.used[candidate] {
			g.used[candidate] = true
			return candidate
		}
	}
}
