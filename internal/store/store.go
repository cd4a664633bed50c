// Package store keeps a local ledger of verified solutions.
package store

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
	"github.com/StormyCloudInc/selector-vanitygen/internal/validator"
)

var solutionsBucket = []byte("Solutions")

// Record is one stored solution.
type Record struct {
	Target   string    `json:"target" yaml:"target"`
	Template string    `json:"template" yaml:"template"`
	Outer    uint8     `json:"outer" yaml:"outer"`
	Inner    uint32    `json:"inner" yaml:"inner"`
	Nonce    string    `json:"nonce" yaml:"nonce"`
	Message  string    `json:"message" yaml:"message"`
	Digest   string    `json:"digest" yaml:"digest"`
	FoundAt  time.Time `json:"found_at" yaml:"found_at"`
	Backend  string    `json:"backend,omitempty" yaml:"backend,omitempty"`
}

// NewRecord describes sol as found for spec.
func NewRecord(spec *searchspec.Spec, sol validator.Solution, backend string) Record {
	return Record{
		Target:   spec.TargetHex(),
		Template: spec.Template(),
		Outer:    uint8(sol.Pair.Outer),
		Inner:    uint32(sol.Pair.Inner),
		Nonce:    sol.NonceHex(),
		Message:  string(sol.Message),
		Digest:   hex.EncodeToString(sol.Digest[:]),
		FoundAt:  time.Now().UTC(),
		Backend:  backend,
	}
}

// Store is a bbolt-backed solution ledger.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open solution store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(solutionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// solutionKey orders records by search, then by position in the nonce
// space. The device a solution was found on is not part of the key.
func solutionKey(r Record) []byte {
	k := []byte(r.Target + "\x00" + r.Template + "\x00")
	p := nonce.Pair{Outer: nonce.Outer(r.Outer), Inner: nonce.Inner(r.Inner)}
	return binary.BigEndian.AppendUint32(k, p.Index())
}

// Add stores r. Storing the same pair twice keeps a single entry.
func (s *Store) Add(r Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(solutionsBucket)
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal solution: %w", err)
		}
		return b.Put(solutionKey(r), data)
	})
}

// List returns every stored solution, optionally only those for target
// (lowercase hex, empty for all), oldest first.
func (s *Store) List(target string) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(solutionsBucket)
		return b.ForEach(func(_, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if target == "" || r.Target == target {
				out = append(out, r)
			}
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].FoundAt.Before(out[j].FoundAt) })
	return out, err
}
