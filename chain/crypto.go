package chain

import (
	"github.com/NethermindEth/juno/core/crypto"
	"github.com/NethermindEth/juno/core/felt"
	"github.com/neotheprogramist/dojo/types"
)

func toJuno(f types.Felt) *felt.Felt {
	b := f.Bytes32()
	return new(felt.Felt).SetBytes(b[:])
}

func fromJuno(f *felt.Felt) types.Felt {
	b := f.Bytes()
	return types.FeltFromBytes(b[:])
}

func toJunoAll(fs []types.Felt) []*felt.Felt {
	out := make([]*felt.Felt, len(fs))
	for i, f := range fs {
		out[i] = toJuno(f)
	}
	return out
}

// PoseidonHashMany is the Starknet Poseidon sponge over fs (poseidon_hash_many).
func PoseidonHashMany(fs []types.Felt) types.Felt {
	return fromJuno(crypto.PoseidonArray(toJunoAll(fs)...))
}

// PedersenArray chains Pedersen over fs starting from 0 and closes with len(fs)
// (compute_hash_on_elements).
func PedersenArray(fs []types.Felt) types.Felt {
	return fromJuno(crypto.PedersenArray(toJunoAll(fs)...))
}
