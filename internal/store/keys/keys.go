// Package keys builds the Redis and in-process cache keys for listing scopes.
package keys

import (
	"fmt"
	"net/url"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
)

const (
	listingsPrefix = "listings:area:"
	placesPrefix   = "places:"
	versionPrefix  = "version:area:"
	snapshotPrefix = "facets:"
	popularKey     = "places:popular"

	// allScope stands for the empty (all areas) scope. QueryEscape never emits '*', so no
	// area id can encode to it.
	allScope = "*"
)

func ListingsKey(areaID string) string {
	return listingsPrefix + scope(areaID)
}

func PlacesKey(kind model.PlaceKind) string {
	return placesPrefix + scope(string(kind))
}

func PopularKey() string { return popularKey }

func VersionKey(areaID string) string {
	return versionPrefix + scope(areaID)
}

// Fingerprint hashes a canonical selection rendering
func Fingerprint(canonical string) uint64 {
	return xxhash.Sum64String(canonical)
}

// SnapshotKey identifies one facet snapshot: scope, scope version and selection
func SnapshotKey(areaID string, version int64, canonical string) string {
	return fmt.Sprintf("%s%s:v%d:f=%016x", snapshotPrefix, scope(areaID), version, Fingerprint(canonical))
}

// SnapshotScopePrefix is the prefix shared by every snapshot key of a scope
func SnapshotScopePrefix(areaID string) string {
	return snapshotPrefix + scope(areaID) + ":"
}

// scope encodes an id into a key segment. The encoding is reversible and ASCII-only, and
// it escapes ':' so one scope's prefix can never match another's keys.
func scope(id string) string {
	if id == "" {
		return allScope
	}
	return url.QueryEscape(id)
}
