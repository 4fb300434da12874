// Package surrogate implements the Surrogate-Key Model (C3): validated
// cache-tag identifiers and the batching rules the CDN Purger and Cache
// Policy Engine build on (§4.3).
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package surrogate

import (
	"strings"

	"github.com/pkg/errors"
)

// MaxKeyLength is the largest a single key's encoded bytes may be.
const MaxKeyLength = 1024

// MaxHeaderBytes bounds the total encoded length (keys plus separators) of a
// Surrogate-Key header.
const MaxHeaderBytes = 16384

// MaxBatchKeys bounds how many keys a single CDN purge call may carry,
// independent of the byte-length cap (§4.4).
const MaxBatchKeys = 256

// CratePrefix is prepended to a crate name to form its surrogate key.
const CratePrefix = "crate-"

// AllKey is applied to every cacheable response (§3 invariant).
const AllKey = "all"

// Key is a single validated surrogate-key identifier: ASCII bytes
// 0x21..=0x7E, length 1..=1024 (§3, §4.3).
type Key string

// NewKey validates raw and returns it as a Key, rejecting empty, oversized,
// or out-of-range-byte input.
func NewKey(raw string) (Key, error) {
	if len(raw) == 0 {
		return "", errors.New("surrogate: key is empty")
	}
	if len(raw) > MaxKeyLength {
		return "", errors.Errorf("surrogate: key exceeds %d bytes", MaxKeyLength)
	}
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if b < 0x21 || b > 0x7E {
			return "", errors.Errorf("surrogate: key contains byte 0x%02x outside 0x21..=0x7E", b)
		}
	}
	return Key(raw), nil
}

// CrateKey builds the key that tags every response derived from a crate,
// regardless of version.
func CrateKey(crateName string) (Key, error) {
	return NewKey(CratePrefix + crateName)
}

// encodedLen is how many bytes raw contributes to a header, including the
// separator that follows it (a single space, matching the source's join
// convention).
func encodedLen(k Key) int {
	return len(k) + 1
}

// Set is an insertion-ordered, deduplicated collection of Keys, encoded as a
// space-joined header value (§4.3: "ordering inside the header is
// insertion-order... duplicates are suppressed").
type Set struct {
	order []Key
	seen  map[Key]bool
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[Key]bool)}
}

// Add inserts k if not already present; it is a no-op on duplicates.
func (s *Set) Add(k Key) {
	if s.seen[k] {
		return
	}
	if s.seen == nil {
		s.seen = make(map[Key]bool)
	}
	s.seen[k] = true
	s.order = append(s.order, k)
}

// Len reports the number of distinct keys.
func (s *Set) Len() int { return len(s.order) }

// Keys returns the keys in insertion order. The caller must not mutate it.
func (s *Set) Keys() []Key { return s.order }

// EncodedLen is the header length this set would encode to: every key plus
// its separator, minus the trailing separator.
func (s *Set) EncodedLen() int {
	if len(s.order) == 0 {
		return 0
	}
	total := 0
	for _, k := range s.order {
		total += encodedLen(k)
	}
	return total - 1
}

// Header renders the set as a single space-joined header value.
func (s *Set) Header() string {
	strs := make([]string, len(s.order))
	for i, k := range s.order {
		strs[i] = string(k)
	}
	return strings.Join(strs, " ")
}

// KeyIterator yields keys one at a time. FromIterUntilFull does not accept
// a KeyIterator; it takes the concrete *SliceIterator (which implements this
// interface), consumes from it greedily and leaves whatever it didn't take
// behind, so a caller can keep pulling to build the next batch.
type KeyIterator interface {
	// Next returns the next key and true, or the zero Key and false when
	// exhausted. A key taken by Next is considered consumed — callers that
	// need to "give a key back" must buffer it themselves before calling.
	Next() (Key, bool)
}

// SliceIterator adapts a []Key into a KeyIterator that supports putting
// keys back, which FromIterUntilFull relies on to leave excess behind.
type SliceIterator struct {
	keys []Key
	pos  int
}

func NewSliceIterator(keys []Key) *SliceIterator {
	return &SliceIterator{keys: keys}
}

func (it *SliceIterator) Next() (Key, bool) {
	if it.pos >= len(it.keys) {
		return "", false
	}
	k := it.keys[it.pos]
	it.pos++
	return k, true
}

// Remaining reports how many keys this iterator has not yet yielded.
func (it *SliceIterator) Remaining() int { return len(it.keys) - it.pos }

// FromIterUntilFull consumes keys from it greedily into a new Set, stopping
// just before appending the next key (plus its separator) would push the
// encoded length over MaxHeaderBytes. Keys not consumed remain available on
// it for the next batch (§4.3). MaxBatchKeys is a separate bound the CDN
// Purger applies on top of this (§4.4); it is not enforced here.
func FromIterUntilFull(it *SliceIterator) *Set {
	set := NewSet()
	// runningTotal mirrors Set.EncodedLen's convention of one trailing
	// separator per key, corrected by -1 when actually rendering.
	runningTotal := 0
	for {
		startPos := it.pos
		k, ok := it.Next()
		if !ok {
			return set
		}
		if set.seen[k] {
			continue // duplicate contributes nothing to the encoded length
		}
		candidateTotal := runningTotal + encodedLen(k)
		if candidateTotal-1 > MaxHeaderBytes {
			it.pos = startPos // leave this key (and everything after) for the next batch
			return set
		}
		set.Add(k)
		runningTotal = candidateTotal
	}
}

// TryExtend is the strict counterpart to FromIterUntilFull: it adds every
// key from keys to the set, erroring without mutating the set if doing so
// would overflow the header-byte limit (§4.3). MaxBatchKeys is not enforced
// here; it belongs to the CDN Purger's own partitioning (§4.4).
func TryExtend(s *Set, keys []Key) error {
	total := s.EncodedLen()
	seen := make(map[Key]bool, len(keys))
	var toAdd []Key
	for _, k := range keys {
		if s.seen[k] || seen[k] {
			continue
		}
		seen[k] = true
		toAdd = append(toAdd, k)
		sep := 0
		if total > 0 {
			sep = 1
		}
		total += len(k) + sep
	}
	if total > MaxHeaderBytes {
		return errors.Errorf("surrogate: extending would exceed %d encoded bytes", MaxHeaderBytes)
	}
	for _, k := range toAdd {
		s.Add(k)
	}
	return nil
}
