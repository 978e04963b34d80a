// Package normalize provides total accessors over untrusted storefront JSON.
//
// Storefront responses are not guaranteed to have any particular shape:
// fields go missing, change type or come back null. Every accessor here
// returns a usable zero value instead of failing, so strategy mappers can
// read upstream data without type assertions of their own.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/ysmood/gson"
)

// Parse wraps an upstream response body. The body is checked up front so
// that malformed JSON is an error, then decoded once by gson.
func Parse(body []byte) (gson.JSON, error) {
	if !json.Valid(body) {
		return gson.New(nil), fmt.Errorf("normalize: invalid JSON body (%d bytes)", len(body))
	}
	doc := gson.New(body)
	doc.Val()
	return doc, nil
}

// Lazy wraps a body without validating it. Decoding happens on first read,
// and an unparsable body reads as null.
func Lazy(body []byte) gson.JSON {
	return gson.New(body)
}

// Empty returns an empty JSON object.
func Empty() gson.JSON {
	return gson.New(map[string]interface{}{})
}

// AsRecord returns v when it holds a JSON object and an empty object otherwise.
func AsRecord(v gson.JSON) gson.JSON {
	if _, ok := v.Val().(map[string]interface{}); ok {
		return v
	}
	return Empty()
}

// AsRecordArray returns the elements of a JSON array, each coerced with
// AsRecord. Anything other than an array yields an empty slice.
func AsRecordArray(v gson.JSON) []gson.JSON {
	items := v.Arr()
	out := make([]gson.JSON, 0, len(items))
	for _, item := range items {
		out = append(out, AsRecord(item))
	}
	return out
}

// Field returns the value stored under key, or JSON null when rec is not an
// object or has no such key. Keys are literal: dots are not path separators.
func Field(rec gson.JSON, key string) gson.JSON {
	v, _ := rec.Gets(key)
	return v
}

// Has reports whether rec is an object with key present, even if null.
func Has(rec gson.JSON, key string) bool {
	_, ok := rec.Gets(key)
	return ok
}

// AsString returns the string held by v, or fallback for any other type.
func AsString(v gson.JSON, fallback string) string {
	if s, ok := v.Val().(string); ok {
		return s
	}
	return fallback
}

// AsNumber returns the finite number held by v.
func AsNumber(v gson.JSON) (float64, bool) {
	f, ok := v.Val().(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AsBoolean returns the boolean held by v.
func AsBoolean(v gson.JSON) (bool, bool) {
	b, ok := v.Val().(bool)
	return b, ok
}

// AsInt returns the number held by v truncated to an int.
func AsInt(v gson.JSON) (int, bool) {
	f, ok := AsNumber(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// AsID renders a numeric or string identifier as a string.
func AsID(v gson.JSON) string {
	switch id := v.Val().(type) {
	case string:
		return id
	case float64:
		if math.IsNaN(id) || math.IsInf(id, 0) {
			return ""
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// ParseAmount reads a monetary amount that may be a JSON number or a
// numeric string. Only finite, non-negative values are accepted.
func ParseAmount(v gson.JSON) (float64, bool) {
	var f float64
	switch raw := v.Val().(type) {
	case float64:
		f = raw
	case string:
		s := strings.TrimSpace(raw)
		if s == "" {
			return 0, false
		}
		parsed, err := cast.ToFloat64E(s)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// Raw re-encodes v for the raw field of normalized records.
func Raw(v gson.JSON) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
