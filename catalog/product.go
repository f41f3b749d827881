package catalog

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// UncategorizedLabel is the category used when a record has none.
const UncategorizedLabel = "Sem categoria"

var (
	priceFields = []string{"precoVenda", "preco", "price", "valor", "valorVenda", "unitPrice"}
	stockFields = []string{"estoque", "qtd", "quantidade", "saldo", "qtdEstoque", "estoqueAtual", "stock"}
	activeFlags = []string{"ativo", "active"}
)

var (
	inactiveFlagValues = map[string]bool{
		"false": true, "0": true, "inativo": true, "inactive": true, "off": true,
	}
	inactiveStatusValues = map[string]bool{
		"inativo": true, "inactive": true, "off": true, "0": true, "false": true,
	}
)

// Product is the typed view of a Record. It is rebuilt from the remote
// document on every event and never mutated afterwards.
type Product struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Barcode  string   `json:"barcode,omitempty"`
	Price    float64  `json:"price"`
	Stock    *float64 `json:"stock,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Active   bool     `json:"active"`
	Raw      Record   `json:"-"`
}

// ProductFromRecord derives a Product from a raw record.
func ProductFromRecord(r Record) Product {
	price := recordPrice(r)
	return Product{
		ID:       recordID(r, price),
		Name:     stringField(r, "nome"),
		Category: recordCategory(r),
		Barcode:  stringField(r, "codigoBarras"),
		Price:    price,
		Stock:    firstFinite(r, stockFields),
		Min:      firstFinite(r, []string{"min"}),
		Active:   IsActive(r),
		Raw:      r,
	}
}

// IsActive reports catalog visibility: an explicit falsy ativo/active flag or
// an inactive-family status hides the record; anything else keeps it.
func IsActive(r Record) bool {
	if r == nil {
		return false
	}
	for _, k := range activeFlags {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case bool:
			if !x {
				return false
			}
		case string:
			if inactiveFlagValues[strings.ToLower(strings.TrimSpace(x))] {
				return false
			}
		default:
			if f, ok := finiteNumber(x); ok && f == 0 {
				return false
			}
		}
	}
	if s, ok := r["status"]; ok {
		status := strings.ToLower(strings.TrimSpace(toString(s)))
		if inactiveStatusValues[status] {
			return false
		}
	}
	return true
}

func recordID(r Record, price float64) string {
	for _, k := range []string{"id", "codigoBarras"} {
		if v, ok := r[k]; ok && v != nil {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	name := stringField(r, "nome")
	if name == "" {
		name = "item"
	}
	return name + "|" + strconv.FormatFloat(price, 'f', -1, 64)
}

func recordCategory(r Record) string {
	if c := strings.TrimSpace(stringField(r, "categoria")); c != "" {
		return c
	}
	return UncategorizedLabel
}

func recordPrice(r Record) float64 {
	if p := firstFinite(r, priceFields); p != nil && *p > 0 {
		return *p
	}
	return 0
}

func stringField(r Record, key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	return toString(v)
}

// toString renders scalars the way they read in the source data: numbers
// without exponent notation, json.Number verbatim.
func toString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return cast.ToString(v)
}

// firstFinite returns the first field in keys holding a finite number.
func firstFinite(r Record, keys []string) *float64 {
	for _, k := range keys {
		if f, ok := finiteNumber(r[k]); ok {
			return &f
		}
	}
	return nil
}

// finiteNumber coerces loosely typed values. nil, blank strings and
// non-numeric text are not numbers.
func finiteNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return 0, false
		}
		v = x
	case json.Number:
		v = x.String()
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
