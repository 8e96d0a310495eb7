package rdb

import "regexp"

// CanonicalType is the five-way value kind every RDB type tag collapses
// into, independent of its on-disk encoding.
type CanonicalType uint8

const (
	CanonicalString CanonicalType = iota
	CanonicalList
	CanonicalSet
	CanonicalSortedSet
	CanonicalHash
)

func (c CanonicalType) String() string {
	switch c {
	case CanonicalString:
		return "string"
	case CanonicalList:
		return "list"
	case CanonicalSet:
		return "set"
	case CanonicalSortedSet:
		return "sortedset"
	case CanonicalHash:
		return "hash"
	default:
		return "unknown"
	}
}

// ParseCanonicalType parses the names used by the CLI/config surfaces.
func ParseCanonicalType(name string) (CanonicalType, bool) {
	switch name {
	case "string":
		return CanonicalString, true
	case "list":
		return CanonicalList, true
	case "set":
		return CanonicalSet, true
	case "sortedset", "zset":
		return CanonicalSortedSet, true
	case "hash":
		return CanonicalHash, true
	default:
		return 0, false
	}
}

// CanonicalTypeOf maps a raw RDB type tag to its canonical kind. Streams
// and module values have no canonical kind and are reported with ok=false;
// callers that type-filter treat that as "always decode."
func CanonicalTypeOf(t Type) (CanonicalType, bool) {
	switch t {
	case TypeString:
		return CanonicalString, true
	case TypeList, TypeListZiplist, TypeListQuicklist, TypeListQuicklist2:
		return CanonicalList, true
	case TypeSet, TypeSetIntset, TypeSetListpack:
		return CanonicalSet, true
	case TypeZset, TypeZset2, TypeZsetZiplist, TypeZsetListpack:
		return CanonicalSortedSet, true
	case TypeHash, TypeHashZipmap, TypeHashZiplist, TypeHashListpack,
		TypeHashMetadata, TypeHashListpackEx:
		return CanonicalHash, true
	default:
		return 0, false
	}
}

// Filter gates which databases, keys and types the top-level driver
// decodes versus skips. Every predicate is consulted before a value's
// bytes are materialized; a key that fails any predicate is still walked
// byte-for-byte (to keep the stream in sync) but handed to a discard
// formatter instead of the caller's formatter.
type Filter interface {
	MatchesDB(db uint64) bool
	MatchesType(t Type) bool
	MatchesKey(key string) bool
}

// DefaultFilter matches every database, type and key.
type DefaultFilter struct{}

func (DefaultFilter) MatchesDB(uint64) bool    { return true }
func (DefaultFilter) MatchesType(Type) bool    { return true }
func (DefaultFilter) MatchesKey(string) bool   { return true }

// ConfiguredFilter is a Filter built from an explicit allow-list of
// databases and canonical types plus an optional key regexp. A nil or
// empty DBs/Types slice matches everything along that axis; a nil
// KeyPattern matches every key.
type ConfiguredFilter struct {
	DBs        []uint64
	Types      []CanonicalType
	KeyPattern *regexp.Regexp
}

func (f *ConfiguredFilter) MatchesDB(db uint64) bool {
	if len(f.DBs) == 0 {
		return true
	}
	for _, d := range f.DBs {
		if d == db {
			return true
		}
	}
	return false
}

func (f *ConfiguredFilter) MatchesType(t Type) bool {
	if len(f.Types) == 0 {
		return true
	}
	canonical, ok := CanonicalTypeOf(t)
	if !ok {
		// streams and modules have no canonical kind; they are only
		// excluded by an explicit type whitelist that never mentions them,
		// which is indistinguishable from "always include" here, so we
		// include them rather than silently drop structurally-walked values.
		return true
	}
	for _, want := range f.Types {
		if want == canonical {
			return true
		}
	}
	return false
}

func (f *ConfiguredFilter) MatchesKey(key string) bool {
	if f.KeyPattern == nil {
		return true
	}
	return f.KeyPattern.MatchString(key)
}
