// Package verifier registers proofs with the on-chain fact registry. A proof is split
// into fragments published one transaction at a time, then a finalize call registers
// the fact from the fragment fingerprints.
package verifier

import (
	"github.com/neotheprogramist/dojo/chain"
	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/types"
)

// DefaultChunkSize bounds the felts carried by one publish_fragment transaction.
const DefaultChunkSize = 2000

// Hasher fingerprints the elements of one fragment.
type Hasher interface {
	Hash(felts []types.Felt) types.Felt
}

// PoseidonHasher is poseidon_hash_many over the fragment, the fingerprint the fact
// registry recomputes.
type PoseidonHasher struct{}

func (PoseidonHasher) Hash(felts []types.Felt) types.Felt {
	return chain.PoseidonHashMany(felts)
}

// Fragment is one publish_fragment payload: the chunk prefixed with its own length,
// and the fingerprint of the chunk without that prefix.
type Fragment struct {
	Calldata []types.Felt
	Hash     types.Felt
}

// Len is the number of proof elements carried.
func (f Fragment) Len() int { return len(f.Calldata) - 1 }

// Fragments splits proof into consecutive chunks of at most chunkSize elements. An
// empty proof has no fragments.
func Fragments(proof []types.Felt, chunkSize int, hasher Hasher) ([]Fragment, error) {
	if chunkSize <= 0 {
		return nil, sayaerrors.ErrVInvalidChunkSize
	}
	out := make([]Fragment, 0, (len(proof)+chunkSize-1)/chunkSize)
	for start := 0; start < len(proof); start += chunkSize {
		end := min(start+chunkSize, len(proof))
		chunk := proof[start:end]
		calldata := make([]types.Felt, 0, len(chunk)+1)
		calldata = append(calldata, types.NewFelt(uint64(len(chunk))))
		calldata = append(calldata, chunk...)
		out = append(out, Fragment{Calldata: calldata, Hash: hasher.Hash(chunk)})
	}
	return out, nil
}

// FinalizeCalldata is [fragment_count, hashes..., version_tag].
func FinalizeCalldata(fragments []Fragment, versionTag types.Felt) []types.Felt {
	out := make([]types.Felt, 0, len(fragments)+2)
	out = append(out, types.NewFelt(uint64(len(fragments))))
	for _, f := range fragments {
		out = append(out, f.Hash)
	}
	return append(out, versionTag)
}
