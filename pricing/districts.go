package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/itsneelabh/storefront/money"
)

// District is a delivery zone with its fee.
type District struct {
	Name string  `json:"name"`
	Fee  float64 `json:"fee"`
}

// FeeTable maps district names to delivery fees. Names keep the order they
// were listed in until Sorted is called; fees may exist for names that are
// not listed.
type FeeTable struct {
	names []string
	seen  map[string]bool
	fees  map[string]float64
}

// NewFeeTable returns an empty table.
func NewFeeTable() *FeeTable {
	return &FeeTable{seen: map[string]bool{}, fees: map[string]float64{}}
}

// Add lists name, recording fee when hasFee is set.
func (t *FeeTable) Add(name string, fee float64, hasFee bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if !t.seen[name] {
		t.seen[name] = true
		t.names = append(t.names, name)
	}
	if hasFee {
		t.fees[name] = fee
	}
}

// Merge copies the fees of override onto t. Names listed only in override
// are not added to the list; names listed only in t are kept.
func (t *FeeTable) Merge(override *FeeTable) *FeeTable {
	if override == nil {
		return t
	}
	for name, fee := range override.fees {
		t.fees[name] = fee
	}
	return t
}

// Sorted orders the listed names with the collator.
func (t *FeeTable) Sorted(c *money.Collator) *FeeTable {
	if c == nil {
		c = money.DefaultCollator()
	}
	sort.SliceStable(t.names, func(i, j int) bool { return c.Less(t.names[i], t.names[j]) })
	return t
}

// Fee looks a district up by exact name; unknown districts cost nothing.
func (t *FeeTable) Fee(name string) float64 {
	if t == nil {
		return 0
	}
	return t.fees[name]
}

// Listed reports whether name is a selectable district.
func (t *FeeTable) Listed(name string) bool {
	return t != nil && t.seen[name]
}

// Names lists the selectable districts.
func (t *FeeTable) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Districts lists the selectable districts with their fees.
func (t *FeeTable) Districts() []District {
	if t == nil {
		return nil
	}
	out := make([]District, 0, len(t.names))
	for _, n := range t.names {
		out = append(out, District{Name: n, Fee: t.fees[n]})
	}
	return out
}

// Label renders a picker entry, "Centro — R$ 7,50", or the bare name when free.
func (d District) Label(f *money.Formatter) string {
	if d.Fee == 0 {
		return d.Name
	}
	if f == nil {
		f = money.BRL
	}
	return d.Name + " — " + f.Format(d.Fee)
}

// ParseDistricts reads one district resource. Accepted shapes:
//
//	["Centro", "Jardim"]                   names only, fee 0
//	[{"name": "Centro", "fee": 7.5}]       also bairro/nome and entrega
//	{"Centro": 7.5, "Jardim": 5}           name to fee
func ParseDistricts(data []byte) (*FeeTable, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse districts: %w", err)
	}

	t := NewFeeTable()
	switch v := parsed.(type) {
	case []interface{}:
		for _, item := range v {
			switch x := item.(type) {
			case string:
				t.Add(x, 0, false)
			case map[string]interface{}:
				name := cast.ToString(firstPresent(x, "name", "bairro", "nome"))
				fee, ok := parseFee(firstPresent(x, "fee", "entrega"))
				t.Add(name, fee, ok)
			}
		}
	case map[string]interface{}:
		for k, raw := range v {
			fee, ok := parseFee(raw)
			t.Add(k, fee, ok)
		}
	default:
		return nil, fmt.Errorf("parse districts: unsupported shape %T", parsed)
	}
	return t, nil
}

// ParseFeeOverrides reads an override resource. Only the name-to-fee map
// shape contributes, and only entries whose fee is a usable number; names
// are not listed. Any other shape yields an empty table.
func ParseFeeOverrides(data []byte) (*FeeTable, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse fee overrides: %w", err)
	}

	t := NewFeeTable()
	m, ok := parsed.(map[string]interface{})
	if !ok {
		return t, nil
	}
	for k, raw := range m {
		name := strings.TrimSpace(k)
		if name == "" {
			continue
		}
		if fee, ok := parseFee(raw); ok {
			t.fees[name] = fee
		}
	}
	return t, nil
}

func firstPresent(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// parseFee accepts finite non-negative numbers. A missing fee is no fee.
func parseFee(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return money.Round2(f), true
}
