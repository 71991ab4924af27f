package mediator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketMediators = []byte("mediators")

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("mediator record not found")

// Record is the persisted state of an escrow agent. It outlives the process
// so that funds can be recovered after a crash.
type Record struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Escrow       string    `json:"escrow"`
	Secret       string    `json:"secret"`
	SellingAsset string    `json:"sellingAsset"`
	BuyingAsset  string    `json:"buyingAsset"`
	Amount       string    `json:"amount"`
	FeeReserve   string    `json:"feeReserve"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Registry persists escrow records keyed by owner address. Records of agents
// owned by this process are live; every other record is obsolete.
type Registry struct {
	db *bolt.DB

	mu   sync.Mutex
	live map[string]bool
}

// OpenRegistry opens (and creates) the registry database at path.
func OpenRegistry(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open mediator registry: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMediators)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Registry{db: db, live: make(map[string]bool)}, nil
}

// Close releases the underlying Bolt database handle.
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func recordKey(source, escrow string) []byte {
	return []byte(source + "/" + escrow)
}

// Put stores rec, replacing an existing record for the same escrow.
func (r *Registry) Put(rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMediators).Put(recordKey(rec.Source, rec.Escrow), raw)
	})
}

// Get loads a single record.
func (r *Registry) Get(source, escrow string) (Record, error) {
	var rec Record
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMediators).Get(recordKey(source, escrow))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	return rec, err
}

// Delete removes a record. Deleting a missing record is not an error.
func (r *Registry) Delete(source, escrow string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMediators).Delete(recordKey(source, escrow))
	})
}

// List returns every record owned by source, oldest first.
func (r *Registry) List(source string) ([]Record, error) {
	prefix := []byte(source + "/")
	var out []Record
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMediators).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt mediator record %s: %w", k, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreated(out)
	return out, nil
}

// ListObsolete returns the records of source not owned by a live agent.
func (r *Registry) ListObsolete(source string) ([]Record, error) {
	all, err := r.List(source)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := all[:0]
	for _, rec := range all {
		if !r.live[rec.Escrow] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// MarkLive records that this process owns escrow.
func (r *Registry) MarkLive(escrow string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[escrow] = true
}

// Release gives up ownership of escrow. A record left behind becomes obsolete.
func (r *Registry) Release(escrow string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, escrow)
}

func sortByCreated(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
