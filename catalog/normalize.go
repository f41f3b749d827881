package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Record is one raw product-like object exactly as it came from the remote
// document. Numbers decoded from JSON text are kept as json.Number so barcodes
// and ids keep their digits.
type Record map[string]interface{}

// SourceKind tags the shape the raw product source was decoded from.
type SourceKind int

const (
	KindEmpty     SourceKind = iota // nothing usable
	KindJSON                        // strict JSON text
	KindJSONLines                   // `{...}{...}` run repaired into an array
	KindArray                       // native sequence
	KindMap                         // native mapping, values taken in key order
)

func (k SourceKind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindJSONLines:
		return "json-lines"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "empty"
	}
}

// Result is the outcome of Decode: the detected source kind and the records
// that survived element-level cleanup.
type Result struct {
	Kind    SourceKind
	Records []Record
}

// Empty reports whether no records were recovered.
func (r Result) Empty() bool {
	return len(r.Records) == 0
}

var objectRun = regexp.MustCompile(`}\s*[\n,]?\s*\{`)

// Decode turns a raw remote value of unknown shape into product records.
// It never panics and never fails: anything unusable degrades to fewer
// records or an Empty result.
func Decode(raw interface{}) Result {
	switch v := raw.(type) {
	case nil:
		return Result{Kind: KindEmpty}
	case string:
		return decodeText(v)
	case []byte:
		return decodeText(string(v))
	case json.RawMessage:
		return decodeText(string(v))
	case []interface{}:
		return Result{Kind: KindArray, Records: cleanElements(v)}
	case []Record:
		elems := make([]interface{}, len(v))
		for i := range v {
			elems[i] = map[string]interface{}(v[i])
		}
		return Result{Kind: KindArray, Records: cleanElements(elems)}
	case []map[string]interface{}:
		elems := make([]interface{}, len(v))
		for i := range v {
			elems[i] = v[i]
		}
		return Result{Kind: KindArray, Records: cleanElements(elems)}
	case []string:
		elems := make([]interface{}, len(v))
		for i := range v {
			elems[i] = v[i]
		}
		return Result{Kind: KindArray, Records: cleanElements(elems)}
	case map[string]interface{}:
		return Result{Kind: KindMap, Records: cleanElements(mapValues(v))}
	case Record:
		return Result{Kind: KindMap, Records: cleanElements(mapValues(v))}
	default:
		return Result{Kind: KindEmpty}
	}
}

// Normalize is Decode without the source tag.
func Normalize(raw interface{}) []Record {
	return Decode(raw).Records
}

func decodeText(s string) Result {
	s = strings.TrimSpace(s)
	if s == "" {
		return Result{Kind: KindEmpty}
	}
	if parsed, err := parseJSON(s); err == nil {
		return fromParsed(parsed, KindJSON)
	}
	repaired := "[" + objectRun.ReplaceAllString(s, "},{") + "]"
	if parsed, err := parseJSON(repaired); err == nil {
		return fromParsed(parsed, KindJSONLines)
	}
	return Result{Kind: KindEmpty}
}

func fromParsed(parsed interface{}, kind SourceKind) Result {
	switch v := parsed.(type) {
	case []interface{}:
		return Result{Kind: kind, Records: cleanElements(v)}
	case map[string]interface{}:
		return Result{Kind: kind, Records: cleanElements(mapValues(v))}
	default:
		return Result{Kind: KindEmpty}
	}
}

var errTrailingData = errors.New("trailing data after JSON value")

// parseJSON is a strict single-value parse that keeps numbers as json.Number.
func parseJSON(s string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}

// cleanElements re-parses string elements and keeps only object-shaped,
// non-falsy results.
func cleanElements(elems []interface{}) []Record {
	out := make([]Record, 0, len(elems))
	for _, e := range elems {
		if s, ok := e.(string); ok {
			parsed, err := parseJSON(strings.TrimSpace(s))
			if err != nil {
				continue
			}
			e = parsed
		}
		if isFalsy(e) {
			continue
		}
		switch m := e.(type) {
		case map[string]interface{}:
			out = append(out, Record(m))
		case Record:
			out = append(out, m)
		}
	}
	return out
}

func isFalsy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case float64:
		return x == 0
	case int:
		return x == 0
	case int64:
		return x == 0
	}
	return false
}

// mapValues returns the values of m with integer-like keys first in numeric
// order and the remaining keys in lexical order.
func mapValues(m map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, iNum := arrayIndex(keys[i])
		nj, jNum := arrayIndex(keys[j])
		switch {
		case iNum && jNum:
			return ni < nj
		case iNum != jNum:
			return iNum
		default:
			return keys[i] < keys[j]
		}
	})
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func arrayIndex(k string) (uint64, bool) {
	if k == "" || (len(k) > 1 && k[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(k, 10, 32)
	return n, err == nil
}

// MarshalRecords encodes records as a JSON array. Used for the local view cache.
func MarshalRecords(records []Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if records == nil {
		records = []Record{}
	}
	if err := enc.Encode(records); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
