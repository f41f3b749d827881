package catalog

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/money"
)

func TestProductFromRecord(t *testing.T) {
	tests := []struct {
		name   string
		record string
		check  func(t *testing.T, p Product)
	}{
		{
			name:   "explicit id wins",
			record: `{"id": 7, "codigoBarras": "0001", "nome": "Arroz", "precoVenda": "12.5", "preco": 10}`,
			check: func(t *testing.T, p Product) {
				assert.Equal(t, "7", p.ID)
				assert.Equal(t, 12.5, p.Price)
				assert.Equal(t, "0001", p.Barcode)
			},
		},
		{
			name:   "barcode keeps leading zeros",
			record: `{"codigoBarras": "0001", "nome": "Sal"}`,
			check: func(t *testing.T, p Product) {
				assert.Equal(t, "0001", p.ID)
			},
		},
		{
			name:   "numeric barcode is not rendered in exponent form",
			record: `{"codigoBarras": 7891234567890, "nome": "Leite"}`,
			check: func(t *testing.T, p Product) {
				assert.Equal(t, "7891234567890", p.ID)
			},
		},
		{
			name:   "composite id from name and price",
			record: `{"nome": "Bolo", "valor": 9.9}`,
			check: func(t *testing.T, p Product) {
				assert.Equal(t, "Bolo|9.9", p.ID)
			},
		},
		{
			name:   "nameless composite id",
			record: `{"price": "abc"}`,
			check: func(t *testing.T, p Product) {
				assert.Equal(t, "item|0", p.ID)
				assert.Equal(t, 0.0, p.Price)
			},
		},
		{
			name:   "blank category uses sentinel",
			record: `{"nome": "X", "categoria": "   "}`,
			check: func(t *testing.T, p Product) {
				assert.Equal(t, UncategorizedLabel, p.Category)
			},
		},
		{
			name:   "first finite stock field",
			record: `{"nome": "X", "estoque": "n/a", "qtd": null, "saldo": "4"}`,
			check: func(t *testing.T, p Product) {
				require.NotNil(t, p.Stock)
				assert.Equal(t, 4.0, *p.Stock)
			},
		},
		{
			name:   "no stock field",
			record: `{"nome": "X"}`,
			check: func(t *testing.T, p Product) {
				assert.Nil(t, p.Stock)
				assert.Nil(t, p.Min)
			},
		},
		{
			name:   "negative price clamps",
			record: `{"nome": "X", "preco": -3}`,
			check: func(t *testing.T, p Product) {
				assert.Equal(t, 0.0, p.Price)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := Normalize("[" + tt.record + "]")
			require.Len(t, recs, 1)
			tt.check(t, ProductFromRecord(recs[0]))
		})
	}
}

func TestIsActive(t *testing.T) {
	tests := []struct {
		record Record
		want   bool
	}{
		{Record{}, true},
		{Record{"ativo": true}, true},
		{Record{"ativo": false}, false},
		{Record{"ativo": 0.0}, false},
		{Record{"ativo": 1.0}, true},
		{Record{"ativo": "false"}, false},
		{Record{"ativo": "0"}, false},
		{Record{"ativo": "sim"}, true},
		{Record{"active": false}, false},
		{Record{"status": "Inativo"}, false},
		{Record{"status": "OFF"}, false},
		{Record{"status": "ativo"}, true},
		{Record{"status": false}, false},
		{Record{"status": nil}, true},
		{nil, false},
	}

	for i, tt := range tests {
		assert.Equal(t, tt.want, IsActive(tt.record), "case %d: %v", i, tt.record)
	}
}

// Every ativo/status combination over the listed values must leave the view
// free of products whose activity derivation is false.
func TestBuildView_NeverIncludesInactive(t *testing.T) {
	values := []interface{}{true, false, 1, 0, "true", "false", "1", "0", "ativo", "inativo", "active", "inactive"}

	var records []interface{}
	n := 0
	for _, a := range values {
		for _, s := range values {
			records = append(records, map[string]interface{}{
				"id":     fmt.Sprintf("p%d", n),
				"nome":   fmt.Sprintf("Produto %d", n),
				"ativo":  a,
				"status": s,
			})
			n++
		}
	}

	view := BuildView(records, Filters{}, nil)
	assert.Equal(t, len(records), view.SourceCount)
	for _, p := range view.Products {
		assert.True(t, IsActive(p.Raw), "inactive product %s leaked into the view", p.ID)
	}
	assert.Less(t, view.Len(), len(records))
	assert.Greater(t, view.Len(), 0)
}

func TestBuildView_MinZeroFilter(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"id": "zero", "nome": "Zero", "min": 0},
		map[string]interface{}{"id": "zero-str", "nome": "Zero str", "min": "0"},
		map[string]interface{}{"id": "one", "nome": "Um", "min": 1},
		map[string]interface{}{"id": "absent", "nome": "Sem min"},
	}

	off := BuildView(raw, Filters{HideMinZero: false}, nil)
	assert.Equal(t, 4, off.Len())

	on := BuildView(raw, Filters{HideMinZero: true}, nil)
	assert.Equal(t, 2, on.Len())
	_, ok := on.Lookup("zero")
	assert.False(t, ok)
	_, ok = on.Lookup("one")
	assert.True(t, ok)
	_, ok = on.Lookup("absent")
	assert.True(t, ok)
}

func TestBuildView_StockFilter(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"id": "none", "nome": "A", "estoque": 0},
		map[string]interface{}{"id": "neg", "nome": "B", "qtd": -2},
		map[string]interface{}{"id": "some", "nome": "C", "stock": 5},
		map[string]interface{}{"id": "unknown", "nome": "D"},
	}

	hidden := BuildView(raw, Filters{HideStockless: true}, nil)
	ids := []string{}
	for _, p := range hidden.Products {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"some", "unknown"}, ids)

	shown := BuildView(raw, Filters{HideStockless: false}, nil)
	assert.Equal(t, 4, shown.Len())
}

func TestBuildView_SortingAndGrouping(t *testing.T) {
	raw := `[
		{"id":"1","nome":"item 10","categoria":"bebidas"},
		{"id":"2","nome":"Item 2","categoria":"Bebidas"},
		{"id":"3","nome":"água","categoria":"Bebidas"},
		{"id":"4","nome":"Pão","categoria":""},
		{"id":"5","nome":"Arroz","categoria":"Açougue"},
		{"id":"6","nome":"banana"}
	]`

	view := BuildView(raw, Filters{}, money.NewCollator("pt-BR"))

	names := []string{}
	for _, p := range view.Products {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"água", "Arroz", "banana", "Item 2", "item 10", "Pão"}, names)

	cats := []string{}
	for _, g := range view.Groups {
		cats = append(cats, g.Category)
	}
	assert.Equal(t, []string{"Açougue", "Bebidas", "bebidas", "Sem categoria"}, cats)
	assert.Equal(t, "água", view.Groups[1].Items[0].Name)
	assert.Equal(t, []string{"banana", "Pão"}, []string{view.Groups[3].Items[0].Name, view.Groups[3].Items[1].Name})
}

func TestBuildView_IsIdempotent(t *testing.T) {
	raw := `{"nome":"B","id":"b"}{"nome":"A","id":"a"}`
	first := BuildView(raw, DefaultFilters(), nil)
	second := BuildView(raw, DefaultFilters(), nil)
	assert.Equal(t, first.Products, second.Products)
	assert.Equal(t, "json-lines", first.Kind)
}

func TestView_Search(t *testing.T) {
	raw := `[
		{"id":"1","nome":"Café Torrado","codigoBarras":"789100"},
		{"id":"2","nome":"Chá Mate","codigoBarras":"789200"},
		{"id":"3","nome":"Açúcar"}
	]`
	view := BuildView(raw, Filters{}, nil)

	groups := view.Search("café", nil)
	require.Len(t, groups, 1)
	assert.Equal(t, "1", groups[0].Items[0].ID)

	groups = view.Search("7892", nil)
	require.Len(t, groups, 1)
	assert.Equal(t, "2", groups[0].Items[0].ID)

	assert.Equal(t, view.Groups, view.Search("  ", nil))
	assert.Empty(t, view.Search("nada", nil))
}

func TestFiltersFromQuery(t *testing.T) {
	f := FiltersFromQuery(url.Values{})
	assert.Equal(t, Filters{HideStockless: true}, f)

	f = FiltersFromQuery(url.Values{"stock": {"0"}, "min": {"1"}})
	assert.Equal(t, Filters{HideStockless: false, HideMinZero: true}, f)
	assert.Equal(t, "sem estoque visível • min=0 oculto", f.Describe())
	assert.Equal(t, "sem estoque oculto", DefaultFilters().Describe())
}
