package catalog

import (
	"net/url"
	"sort"
	"strings"

	"github.com/itsneelabh/storefront/money"
)

// Filters are the user-toggleable visibility filters.
type Filters struct {
	HideStockless bool `json:"hideStockless"`
	HideMinZero   bool `json:"hideMinZero"`
}

// DefaultFilters hides stockless products and shows min=0 ones.
func DefaultFilters() Filters {
	return Filters{HideStockless: true}
}

// FiltersFromQuery reads ?stock=0 (show stockless) and ?min=1 (hide min=0).
func FiltersFromQuery(q url.Values) Filters {
	f := DefaultFilters()
	if q.Get("stock") == "0" {
		f.HideStockless = false
	}
	if q.Get("min") == "1" {
		f.HideMinZero = true
	}
	return f
}

// Describe renders the active flags for the meta line.
func (f Filters) Describe() string {
	parts := make([]string, 0, 2)
	if f.HideStockless {
		parts = append(parts, "sem estoque oculto")
	} else {
		parts = append(parts, "sem estoque visível")
	}
	if f.HideMinZero {
		parts = append(parts, "min=0 oculto")
	}
	return strings.Join(parts, " • ")
}

// Keep reports whether p passes the filters. Inactive products never pass.
func (f Filters) Keep(p Product) bool {
	if !p.Active {
		return false
	}
	if f.HideMinZero && p.Min != nil && *p.Min == 0 {
		return false
	}
	if f.HideStockless && p.Stock != nil && *p.Stock <= 0 {
		return false
	}
	return true
}

// Group is one category bucket of the view.
type Group struct {
	Category string    `json:"category"`
	Items    []Product `json:"items"`
}

// View is the render-ready projection of the raw source under a set of filters.
type View struct {
	Products    []Product `json:"products"`
	Groups      []Group   `json:"groups"`
	Filters     Filters   `json:"filters"`
	SourceCount int       `json:"sourceCount"`
	Kind        string    `json:"sourceKind"`

	index map[string]Product
}

// BuildView normalizes raw, applies the filters and produces the sorted,
// grouped view together with its id index. It is a pure function of its
// inputs. A nil collator uses the shared pt-BR collator.
func BuildView(raw interface{}, filters Filters, collator *money.Collator) *View {
	decoded := Decode(raw)
	return buildFromRecords(decoded.Records, decoded.Kind, filters, collator)
}

func buildFromRecords(records []Record, kind SourceKind, filters Filters, collator *money.Collator) *View {
	if collator == nil {
		collator = money.DefaultCollator()
	}

	products := make([]Product, 0, len(records))
	index := make(map[string]Product, len(records))
	for _, r := range records {
		p := ProductFromRecord(r)
		if !filters.Keep(p) {
			continue
		}
		products = append(products, p)
		index[p.ID] = p
	}

	sortByName(products, collator)

	return &View{
		Products:    products,
		Groups:      groupByCategory(products, collator),
		Filters:     filters,
		SourceCount: len(records),
		Kind:        kind.String(),
		index:       index,
	}
}

// Lookup finds a visible product by id.
func (v *View) Lookup(id string) (Product, bool) {
	if v == nil {
		return Product{}, false
	}
	p, ok := v.index[id]
	return p, ok
}

// Len is the number of visible products.
func (v *View) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Products)
}

// Records returns the raw records behind the visible products.
func (v *View) Records() []Record {
	out := make([]Record, 0, v.Len())
	if v == nil {
		return out
	}
	for _, p := range v.Products {
		out = append(out, p.Raw)
	}
	return out
}

// Search narrows the view to products whose name or barcode contains query,
// case-insensitively, and regroups them. An empty query returns all groups.
func (v *View) Search(query string, collator *money.Collator) []Group {
	if v == nil {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return v.Groups
	}
	if collator == nil {
		collator = money.DefaultCollator()
	}
	matched := make([]Product, 0)
	for _, p := range v.Products {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Barcode), q) {
			matched = append(matched, p)
		}
	}
	return groupByCategory(matched, collator)
}

func sortByName(products []Product, collator *money.Collator) {
	sort.SliceStable(products, func(i, j int) bool {
		return collator.Less(products[i].Name, products[j].Name)
	})
}

func groupByCategory(products []Product, collator *money.Collator) []Group {
	buckets := make(map[string][]Product)
	for _, p := range products {
		buckets[p.Category] = append(buckets[p.Category], p)
	}

	categories := make([]string, 0, len(buckets))
	for c := range buckets {
		categories = append(categories, c)
	}
	sort.SliceStable(categories, func(i, j int) bool {
		if collator.Equal(categories[i], categories[j]) {
			return categories[i] < categories[j]
		}
		return collator.Less(categories[i], categories[j])
	})

	groups := make([]Group, 0, len(categories))
	for _, c := range categories {
		items := append([]Product(nil), buckets[c]...)
		sortByName(items, collator)
		groups = append(groups, Group{Category: c, Items: items})
	}
	return groups
}
