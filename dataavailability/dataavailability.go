// Package dataavailability publishes per-block state diffs.
package dataavailability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/neotheprogramist/dojo/log"
	"github.com/neotheprogramist/dojo/storage"
	"github.com/neotheprogramist/dojo/types"
)

// Client publishes the data-availability encoding of a state diff.
type Client interface {
	PublishStateDiffFelts(ctx context.Context, felts []types.Felt) error
}

const (
	prefixDiff = "da/"
	keyNext    = "da_next"
)

// Archive is a Client that keeps every published diff in a local store, numbered in
// publication order.
type Archive struct {
	mu    sync.Mutex
	store *storage.PersistenceStore
	next  uint64
}

var _ Client = (*Archive)(nil)

func NewArchive(store *storage.PersistenceStore) (*Archive, error) {
	a := &Archive{store: store}
	raw, ok, err := store.Get([]byte(keyNext))
	if err != nil {
		return nil, err
	}
	if ok {
		if err := json.Unmarshal(raw, &a.next); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keyNext, err)
		}
	}
	return a, nil
}

func (a *Archive) PublishStateDiffFelts(ctx context.Context, felts []types.Felt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(felts)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	seq := a.next
	next, _ := json.Marshal(seq + 1)
	if err := a.store.WriteBatch(map[string][]byte{
		string(storage.Uint64Key(prefixDiff, seq)): data,
		keyNext: next,
	}); err != nil {
		return fmt.Errorf("archive diff %d: %w", seq, err)
	}
	a.next = seq + 1
	log.Debug(log.DAMonitoring, "Published state diff", "seq", seq, "felts", len(felts))
	return nil
}

// Len is the number of diffs published so far.
func (a *Archive) Len() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Get returns the diff published with sequence number seq.
func (a *Archive) Get(seq uint64) ([]types.Felt, bool, error) {
	raw, ok, err := a.store.Get(storage.Uint64Key(prefixDiff, seq))
	if err != nil || !ok {
		return nil, ok, err
	}
	var felts []types.Felt
	if err := json.Unmarshal(raw, &felts); err != nil {
		return nil, false, fmt.Errorf("decode diff %d: %w", seq, err)
	}
	return felts, true, nil
}
