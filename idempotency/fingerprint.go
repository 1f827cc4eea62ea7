package idempotency

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fields is the loosely typed request content a fingerprint is derived from.
// Values may be strings, numbers, booleans, json.Number or nil.
type Fields map[string]any

// Kind selects the coercion applied to a schema field.
type Kind uint8

const (
	// Number coerces like a JavaScript Number(): "" is 0, unparsable or missing
	// values become null.
	Number Kind = iota
	// Text coerces like String(v || ""): missing and falsy values become "".
	Text
)

// Field is one entry of a Schema.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the ordered list of semantic fields of one operation. Fields not in
// the schema never influence the fingerprint.
type Schema []Field

// TransferSchema covers immediate and scheduled transfers.
var TransferSchema = Schema{
	{Name: "fromBankId", Kind: Number},
	{Name: "toBankId", Kind: Number},
	{Name: "fromAccountNumber", Kind: Text},
	{Name: "toAccountNumber", Kind: Text},
	{Name: "amount", Kind: Number},
}

// AccountSchema covers account opening.
var AccountSchema = Schema{
	{Name: "bankId", Kind: Number},
	{Name: "accountType", Kind: Text},
	{Name: "balance", Kind: Number},
}

// Fingerprint returns the transfer fingerprint of fields.
func Fingerprint(fields Fields) string {
	return TransferSchema.Fingerprint(fields)
}

// Fingerprint returns the canonical JSON object of fields restricted to s.
func (s Schema) Fingerprint(fields Fields) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(&b, f.Name)
		b.WriteByte(':')

		v, ok := fields[f.Name]
		switch f.Kind {
		case Number:
			n, valid := toNumber(v, ok)
			if !valid {
				b.WriteString("null")
			} else {
				b.WriteString(formatNumber(n))
			}
		default:
			writeString(&b, toText(v, ok))
		}
	}
	b.WriteByte('}')
	return b.String()
}

// toNumber reports valid=false for values that would serialize as null.
func toNumber(v any, present bool) (float64, bool) {
	if !present || v == nil {
		return 0, false
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case json.Number:
		return parseNumber(string(x))
	case string:
		return parseNumber(x)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	if strings.ContainsRune(s, '_') {
		return 0, false
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			u, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return 0, false
			}
			return float64(u), true
		}
	}
	// Go accepts hex floats and "inf"/"nan" spellings; hex floats are rejected
	// here and non-finite results serialize as null below.
	if strings.ContainsAny(s, "pP") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toText(v any, present bool) string {
	if !present || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if !x {
			return ""
		}
		return "true"
	case json.Number:
		return string(x)
	}
	if isNumeric(v) {
		f, ok := toNumber(v, true)
		if !ok || f == 0 {
			return ""
		}
		return formatNumber(f)
	}
	return fmt.Sprint(v)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// formatNumber renders f the way JSON.stringify does for finite numbers.
func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// writeString quotes s the way JSON.stringify does: only quotes, backslashes and
// control characters are escaped, U+2028/U+2029 and HTML characters are written as-is.
// Invalid UTF-8 bytes become U+FFFD, as a browser would decode them.
func writeString(b *strings.Builder, s string) {
	const hex = "0123456789abcdef"
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hex[r>>4])
				b.WriteByte(hex[r&0xf])
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}
