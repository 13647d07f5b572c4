// Package journal provides the append-only, tamper-evident operation log the
// substrate commits through. Each record is hash-chained to its predecessor;
// replaying the log from genesis rebuilds engine state deterministically.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Record is one committed operation. Params carry everything needed to
// re-apply the operation; failed operations are never journaled.
type Record struct {
	Seq      uint64          `json:"seq"`
	Op       string          `json:"op"`
	Params   json.RawMessage `json:"params"`
	At       time.Time       `json:"at"`
	PrevHash string          `json:"prevHash"`
	Hash     string          `json:"hash"`
}

// Digest computes the record's chained hash over its content and PrevHash.
func (r Record) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%d|%s", r.Seq, r.Op, r.Params, r.At.UnixNano(), r.PrevHash)
	return hex.EncodeToString(h.Sum(nil))
}

// Seal fills PrevHash and Hash from the preceding record's hash.
func (r *Record) Seal(prevHash string) {
	r.PrevHash = prevHash
	r.Hash = r.Digest()
}

// Verify checks the record against the expected predecessor hash.
func (r Record) Verify(prevHash string) error {
	if r.PrevHash != prevHash {
		return fmt.Errorf("journal: record %d links to %q, expected %q", r.Seq, r.PrevHash, prevHash)
	}
	if got := r.Digest(); got != r.Hash {
		return fmt.Errorf("journal: record %d hash mismatch", r.Seq)
	}
	return nil
}

// Store persists the chain.
type Store interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context) ([]Record, error)
}

// MemoryStore keeps the chain in memory. The substrate serializes access.
type MemoryStore struct {
	records []Record
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}
