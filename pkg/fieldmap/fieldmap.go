// Package fieldmap maps raw upstream custom-field names to storage targets.
//
// A field's display name is first sanitized into a "clean name" (decorative
// symbols stripped, whitespace trimmed). The clean name is the stable key
// used for the field-definition document and for catalog lookup. Known
// fields carry a coercion kind and, for promoted fields, a dedicated
// storage key in the value document.
package fieldmap

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fieldsync/backend/pkg/utils"
)

// Kind is the declared semantic type of a mapped field
type Kind int

const (
	Text Kind = iota
	Timestamp
	Decimal
	Integer
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Timestamp:
		return "timestamp"
	case Decimal:
		return "decimal"
	case Integer:
		return "integer"
	}
	return "unknown"
}

// Mapping describes where a known field's value is stored and how its raw
// value is coerced. Column is empty for fields kept in the generic value
// bag under their clean name.
type Mapping struct {
	Column string
	Kind   Kind
}

// StorageKey returns the key under which a coerced value is stored in the
// value document: the dedicated column name for promoted fields, the clean
// name otherwise.
func (m Mapping) StorageKey(cleanName string) string {
	if m.Column != "" {
		return m.Column
	}
	return cleanName
}

// catalog is the immutable table of known field names, keyed by clean name.
// Adding a field is a one-line entry here.
var catalog = map[string]Mapping{
	"Client":          {Column: "client", Kind: Text},
	"Project Manager": {Column: "project_manager", Kind: Text},
	"Invoice Number":  {Column: "invoice_number", Kind: Text},
	"Budget":          {Column: "budget", Kind: Decimal},
	"Estimated Hours": {Column: "estimated_hours", Kind: Decimal},
	"Story Points":    {Column: "story_points", Kind: Integer},
	"Start Date":      {Column: "start_date", Kind: Timestamp},
	"Due Date":        {Column: "due_date", Kind: Timestamp},
	"Priority":        {Kind: Text},
	"Phase":           {Kind: Text},
	"Completion":      {Kind: Integer},
}

// decorative covers the symbol and pictograph blocks stripped from field
// names: misc symbols, dingbats, arrows, emoji planes, variation selectors
// and joiners.
var decorative = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2190, Hi: 0x21FF, Stride: 1}, // arrows
		{Lo: 0x2300, Hi: 0x23FF, Stride: 1}, // misc technical
		{Lo: 0x2600, Hi: 0x26FF, Stride: 1}, // misc symbols
		{Lo: 0x2700, Hi: 0x27BF, Stride: 1}, // dingbats
		{Lo: 0x2B00, Hi: 0x2BFF, Stride: 1}, // misc symbols and arrows
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1F000, Hi: 0x1F0FF, Stride: 1}, // mahjong, dominoes, cards
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1}, // misc symbols and pictographs
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1}, // emoticons
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1}, // transport and map symbols
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1}, // supplemental symbols
		{Lo: 0x1FA00, Hi: 0x1FAFF, Stride: 1}, // symbols and pictographs ext-A
	},
}

// CleanName strips decorative symbol characters from a raw field name and
// trims whitespace. The result is the stable lookup key used everywhere
// downstream.
func CleanName(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r == 0x200D { // zero-width joiner
			continue
		}
		if unicode.Is(decorative, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Classify looks up the clean form of a raw field name in the catalog.
// The second return is false for unknown fields; those are retained in the
// field-definition document but carry no value mapping.
func Classify(rawName string) (Mapping, bool) {
	m, ok := catalog[CleanName(rawName)]
	return m, ok
}

// Coerce applies the kind's coercion rule to a raw value.
//
//	Text      -> stringified value
//	Timestamp -> time.Time from epoch millis, nil when falsy
//	Decimal   -> float64 only when the value is already numeric, else nil
//	Integer   -> int64 from numbers or base-10 numeric strings, else nil
//
// Only unparseable timestamps produce an error; the caller logs it and
// drops the value.
func (m Mapping) Coerce(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}

	switch m.Kind {
	case Text:
		return stringify(raw), nil

	case Timestamp:
		return coerceTimestamp(raw)

	case Decimal:
		if f, ok := utils.ToFloat64(raw); ok {
			return f, nil
		}
		return nil, nil

	case Integer:
		if n, ok := utils.ToInt64(raw); ok {
			return n, nil
		}
		return nil, nil
	}

	return nil, fmt.Errorf("unknown field kind %d", m.Kind)
}

func stringify(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceTimestamp parses epoch milliseconds carried as a number or numeric
// string. Falsy inputs (zero, empty string) yield nil.
func coerceTimestamp(raw interface{}) (interface{}, error) {
	var millis int64
	switch v := raw.(type) {
	case float64:
		if v == 0 {
			return nil, nil
		}
		millis = int64(v)
	case string:
		if v == "" || v == "0" {
			return nil, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("timestamp value %q is not epoch millis", v)
		}
		millis = n
	case int64:
		if v == 0 {
			return nil, nil
		}
		millis = v
	default:
		return nil, fmt.Errorf("timestamp value of type %T is not supported", raw)
	}
	return time.UnixMilli(millis).UTC(), nil
}
