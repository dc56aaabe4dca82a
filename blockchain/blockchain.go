// Package blockchain keeps the local record of every block the pipeline has ingested:
// header summary, post-state root and state diff, plus the highest block seen.
package blockchain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/neotheprogramist/dojo/log"
	"github.com/neotheprogramist/dojo/storage"
	"github.com/neotheprogramist/dojo/types"
)

const (
	prefixBlock       = "blk/"
	prefixStateUpdate = "su/"
	keyHead           = "head"
)

// BlockRecord is the persisted summary of an ingested block.
type BlockRecord struct {
	Number     uint64     `json:"block_number"`
	Hash       types.Felt `json:"block_hash"`
	ParentHash types.Felt `json:"parent_hash"`
	StateRoot  types.Felt `json:"state_root"`
	TxCount    int        `json:"tx_count"`
}

// Ledger is the local state-root bookkeeping backed by a PersistenceStore.
type Ledger struct {
	mu    sync.Mutex
	store *storage.PersistenceStore
}

func NewLedger(store *storage.PersistenceStore) *Ledger {
	return &Ledger{store: store}
}

// UpdateStateWithBlock records block and its state update and advances the head.
// A state update whose old root does not match the recorded root of the parent is
// logged but still recorded; the provider is the source of truth.
func (l *Ledger) UpdateStateWithBlock(block *types.Block, update *types.StateUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if block.Number > 0 {
		parent, ok, err := l.block(block.Number - 1)
		if err != nil {
			return err
		}
		if ok && !update.OldRoot.IsZero() && !parent.StateRoot.Equal(update.OldRoot) {
			log.Warn(log.StorageMonitoring, "Ledger: state root discontinuity",
				"block", block.Number,
				"parentRoot", parent.StateRoot,
				"oldRoot", update.OldRoot)
		}
	}

	rec := BlockRecord{
		Number:     block.Number,
		Hash:       block.Hash,
		ParentHash: block.ParentHash,
		StateRoot:  block.StateRoot,
		TxCount:    len(block.Transactions),
	}
	recBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal block %d: %w", block.Number, err)
	}
	suBytes, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal state update %d: %w", block.Number, err)
	}
	puts := map[string][]byte{
		string(storage.Uint64Key(prefixBlock, block.Number)):       recBytes,
		string(storage.Uint64Key(prefixStateUpdate, block.Number)): suBytes,
	}

	head, hasHead, err := l.head()
	if err != nil {
		return err
	}
	if !hasHead || block.Number > head {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], block.Number)
		puts[keyHead] = buf[:]
	}
	if err := l.store.WriteBatch(puts); err != nil {
		return fmt.Errorf("record block %d: %w", block.Number, err)
	}
	log.Trace(log.StorageMonitoring, "Ledger: recorded block", "block", block.Number, "stateRoot", block.StateRoot)
	return nil
}

// Head returns the highest recorded block number.
func (l *Ledger) Head() (uint64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head()
}

func (l *Ledger) head() (uint64, bool, error) {
	b, ok, err := l.store.Get([]byte(keyHead))
	if err != nil || !ok {
		return 0, ok, err
	}
	if len(b) != 8 {
		return 0, false, fmt.Errorf("corrupt head record of %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), true, nil
}

// Block returns the recorded summary of block n.
func (l *Ledger) Block(n uint64) (*BlockRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block(n)
}

func (l *Ledger) block(n uint64) (*BlockRecord, bool, error) {
	b, ok, err := l.store.Get(storage.Uint64Key(prefixBlock, n))
	if err != nil || !ok {
		return nil, ok, err
	}
	var rec BlockRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false, fmt.Errorf("decode block %d: %w", n, err)
	}
	return &rec, true, nil
}

// StateUpdate returns the recorded state update of block n.
func (l *Ledger) StateUpdate(n uint64) (*types.StateUpdate, bool, error) {
	b, ok, err := l.store.Get(storage.Uint64Key(prefixStateUpdate, n))
	if err != nil || !ok {
		return nil, ok, err
	}
	var su types.StateUpdate
	if err := json.Unmarshal(b, &su); err != nil {
		return nil, false, fmt.Errorf("decode state update %d: %w", n, err)
	}
	return &su, true, nil
}
