package types

import (
	"encoding/json"

	log "github.com/neotheprogramist/dojo/log"
)

// StateUpdates is the state diff of a block or block range, keyed by contract address.
type StateUpdates struct {
	NonceUpdates    map[Felt]Felt          `json:"nonce_updates"`
	StorageUpdates  map[Felt]map[Felt]Felt `json:"storage_updates"`
	ContractUpdates map[Felt]Felt          `json:"contract_updates"`
	DeclaredClasses map[Felt]Felt          `json:"declared_classes"`
}

func NewStateUpdates() StateUpdates {
	return StateUpdates{
		NonceUpdates:    make(map[Felt]Felt),
		StorageUpdates:  make(map[Felt]map[Felt]Felt),
		ContractUpdates: make(map[Felt]Felt),
		DeclaredClasses: make(map[Felt]Felt),
	}
}

func (su StateUpdates) MarshalJSON() ([]byte, error) {
	type Alias StateUpdates
	a := Alias(su)
	if a.NonceUpdates == nil {
		a.NonceUpdates = map[Felt]Felt{}
	}
	if a.StorageUpdates == nil {
		a.StorageUpdates = map[Felt]map[Felt]Felt{}
	}
	if a.ContractUpdates == nil {
		a.ContractUpdates = map[Felt]Felt{}
	}
	if a.DeclaredClasses == nil {
		a.DeclaredClasses = map[Felt]Felt{}
	}
	return json.Marshal(a)
}

// Merge returns the union of su and later. Where both touch the same key the value from
// later wins, which keeps merging associative across any split of a block range.
// Disjoint ranges never collide, so a collision is logged as a warning.
func (su StateUpdates) Merge(later StateUpdates) StateUpdates {
	out := NewStateUpdates()
	collisions := 0
	put := func(dst map[Felt]Felt, k, v Felt) {
		if _, ok := dst[k]; ok {
			collisions++
		}
		dst[k] = v
	}
	for _, src := range []StateUpdates{su, later} {
		for k, v := range src.NonceUpdates {
			put(out.NonceUpdates, k, v)
		}
		for k, v := range src.ContractUpdates {
			put(out.ContractUpdates, k, v)
		}
		for k, v := range src.DeclaredClasses {
			put(out.DeclaredClasses, k, v)
		}
		for addr, writes := range src.StorageUpdates {
			dst, ok := out.StorageUpdates[addr]
			if !ok {
				dst = make(map[Felt]Felt, len(writes))
				out.StorageUpdates[addr] = dst
			}
			for k, v := range writes {
				put(dst, k, v)
			}
		}
	}
	if collisions > 0 {
		log.Warn(log.ProverMonitoring, "State diffs overlap, keeping later values", "collisions", collisions)
	}
	return out
}

// IsEmpty reports whether the diff touches nothing.
func (su StateUpdates) IsEmpty() bool {
	return len(su.NonceUpdates) == 0 && len(su.StorageUpdates) == 0 &&
		len(su.ContractUpdates) == 0 && len(su.DeclaredClasses) == 0
}

// StateUpdate is a provider's answer for one block's state transition.
type StateUpdate struct {
	BlockHash Felt         `json:"block_hash"`
	NewRoot   Felt         `json:"new_root"`
	OldRoot   Felt         `json:"old_root"`
	StateDiff StateUpdates `json:"state_diff"`
}

// DAFelts encodes the state diff for data-availability publication:
//
//	[contract_count, (address, nonce, class_hash, storage_count, (key, value)*)*,
//	 declared_count, (class_hash, compiled_class_hash)*]
//
// Contracts and keys are in ascending order. Missing nonce or class hash are encoded as 0.
func (su StateUpdate) DAFelts() []Felt {
	diff := su.StateDiff
	seen := make(map[Felt]struct{})
	for a := range diff.NonceUpdates {
		seen[a] = struct{}{}
	}
	for a := range diff.ContractUpdates {
		seen[a] = struct{}{}
	}
	for a := range diff.StorageUpdates {
		seen[a] = struct{}{}
	}
	addrs := make([]Felt, 0, len(seen))
	for a := range seen {
		addrs = append(addrs, a)
	}
	SortFelts(addrs)

	out := []Felt{NewFelt(uint64(len(addrs)))}
	for _, a := range addrs {
		writes := diff.StorageUpdates[a]
		keys := make([]Felt, 0, len(writes))
		for k := range writes {
			keys = append(keys, k)
		}
		SortFelts(keys)
		out = append(out, a, diff.NonceUpdates[a], diff.ContractUpdates[a], NewFelt(uint64(len(keys))))
		for _, k := range keys {
			out = append(out, k, writes[k])
		}
	}

	classes := make([]Felt, 0, len(diff.DeclaredClasses))
	for c := range diff.DeclaredClasses {
		classes = append(classes, c)
	}
	SortFelts(classes)
	out = append(out, NewFelt(uint64(len(classes))))
	for _, c := range classes {
		out = append(out, c, diff.DeclaredClasses[c])
	}
	return out
}
