package world

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// idSpace namespaces the name-based ids of world entities.
var idSpace = uuid.MustParse("6f1c2a9e-3b7d-5e40-9a1f-2c8d4b6e0a73")

// StableID derives a version 5 uuid from parts. Equal parts give equal ids,
// so seeded runs name their entities identically.
func StableID(parts ...string) string {
	return uuid.NewSHA1(idSpace, []byte(strings.Join(parts, "\x1f"))).String()
}

// FactionID is the id of the faction called name in shard.
func FactionID(shard, name string) string {
	return StableID("faction", shard, name)
}

// SiegeID is the id of the nth siege opened in shard, against territoryID by
// attackerID at tick.
func SiegeID(shard, territoryID, attackerID string, tick uint64, n int) string {
	return StableID("siege", shard, territoryID, attackerID, strconv.FormatUint(tick, 10), strconv.Itoa(n))
}

// RelationID is the id of the relation record for the pair a, b in shard.
func RelationID(shard, a, b string) string {
	return StableID("relation", shard, PairKey(a, b))
}
