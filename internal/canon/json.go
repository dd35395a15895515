package canon

import "encoding/json"

// Both Cherry Studio and this converter author nested JSON-in-JSON fields
// with Go's encoder discipline: object keys sorted lexicographically at every
// level, HTML-significant runes (<, >, &) and U+2028/U+2029 escaped as \uXXXX.
// encoding/json does exactly this for map values, so canonical output is a
// matter of always serializing plain map/slice/scalar trees, never structs
// with ordered fields.

// MustJSON returns the compact canonical encoding. It panics on
// unserializable values, which only plain decoded JSON trees never are.
func MustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// PrettyJSON returns the two-space indented canonical encoding, used for the
// sidecar manifest and API responses.
func PrettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
