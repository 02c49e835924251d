// Package poi holds the value types shared by the monitor: deployment/block
// keys, proof-of-indexing fingerprints, the per-key submission set, and the
// canonical disagreement identity used for notification dedup.
package poi

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Key identifies one unit of attested work: a subgraph deployment at a
// specific block.
type Key struct {
	Deployment string
	Block      int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.Deployment, k.Block)
}

// Fingerprint is one indexer's claimed POI hash. Opaque bytes; ordering is
// byte-lexicographic and carries no semantic meaning.
type Fingerprint []byte

func (f Fingerprint) Hex() string { return hex.EncodeToString(f) }

// Submission is one historical POI fact: who submitted which fingerprint for
// which key, when, on which network. Append-only upstream; never mutated here.
type Submission struct {
	Key         Key
	Fingerprint Fingerprint
	Indexer     string
	Network     string
	SubmittedAt time.Time
}

// FingerprintSet is the current view of submissions for a single key:
// fingerprint (hex) -> indexer addresses. Built row by row; insertion order
// must not influence anything derived from it.
type FingerprintSet struct {
	byHex map[string]*entry
}

type entry struct {
	fp       Fingerprint
	indexers map[string]struct{}
}

func NewFingerprintSet() *FingerprintSet {
	return &FingerprintSet{byHex: make(map[string]*entry)}
}

// Add records that indexer submitted fp. Duplicate (fp, indexer) pairs
// collapse.
func (s *FingerprintSet) Add(fp Fingerprint, indexer string) {
	h := fp.Hex()
	e, ok := s.byHex[h]
	if !ok {
		e = &entry{fp: fp, indexers: make(map[string]struct{})}
		s.byHex[h] = e
	}
	e.indexers[indexer] = struct{}{}
}

// Distinct returns the number of distinct fingerprints in the set.
func (s *FingerprintSet) Distinct() int { return len(s.byHex) }

// Fingerprints returns the distinct fingerprints in canonical
// (byte-lexicographic) order.
func (s *FingerprintSet) Fingerprints() []Fingerprint {
	out := make([]Fingerprint, 0, len(s.byHex))
	for _, e := range s.byHex {
		out = append(out, e.fp)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

// Indexers returns the addresses that submitted fp, sorted.
func (s *FingerprintSet) Indexers(fp Fingerprint) []string {
	e, ok := s.byHex[fp.Hex()]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.indexers))
	for addr := range e.indexers {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Identity is the content address of a disagreement state: the sorted,
// deduplicated sequence of distinct fingerprints observed for a key. Two
// analyses of the same key yield equal identities iff the distinct
// fingerprint sets are equal, independent of submitter or row order.
type Identity [][]byte

// NewIdentity builds the canonical identity from fingerprints in any order,
// collapsing duplicates.
func NewIdentity(fps ...Fingerprint) Identity {
	dedup := make(map[string][]byte, len(fps))
	for _, fp := range fps {
		dedup[string(fp)] = append([]byte(nil), fp...)
	}
	out := make(Identity, 0, len(dedup))
	for _, b := range dedup {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

// Identity derives the canonical identity of the set's distinct fingerprints.
func (s *FingerprintSet) Identity() Identity {
	fps := make([]Fingerprint, 0, len(s.byHex))
	for _, e := range s.byHex {
		fps = append(fps, e.fp)
	}
	return NewIdentity(fps...)
}

func (id Identity) Empty() bool { return len(id) == 0 }

func (id Identity) Size() int { return len(id) }

// Equal compares two identities by value.
func (id Identity) Equal(other Identity) bool {
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if !bytes.Equal(id[i], other[i]) {
			return false
		}
	}
	return true
}

// Hexes returns the identity's fingerprints as lowercase hex, in canonical
// order.
func (id Identity) Hexes() []string {
	out := make([]string, len(id))
	for i, b := range id {
		out[i] = hex.EncodeToString(b)
	}
	return out
}
