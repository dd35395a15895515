// Package canon provides the two determinism primitives the converter relies
// on: name-based UUID derivation and canonical JSON encoding. Re-running a
// conversion on unchanged input must reproduce identical identifiers and
// identical serialized bytes.
package canon

import (
	"strings"

	"github.com/google/uuid"
)

const seedPrefix = "rikkaport"

// DeriveUUID returns a stable RFC 4122 v5-style UUID for the given kind and
// disambiguator parts. Identical input always yields the identical UUID.
func DeriveUUID(kind string, parts ...string) string {
	seed := seedPrefix + ":" + kind
	if len(parts) > 0 {
		seed += ":" + strings.Join(parts, ":")
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// NormalizeUUID keeps candidate when it already parses as a UUID, otherwise
// derives a stable one from kind and parts.
func NormalizeUUID(candidate, kind string, parts ...string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate != "" {
		if _, err := uuid.Parse(candidate); err == nil {
			return candidate
		}
	}
	return DeriveUUID(kind, parts...)
}

func IsUUID(v string) bool {
	_, err := uuid.Parse(strings.TrimSpace(v))
	return err == nil
}
