package chain

import (
	"github.com/neotheprogramist/dojo/types"
	"golang.org/x/crypto/sha3"
)

const (
	EntryPointPublishFragment                    = "publish_fragment"
	EntryPointVerifyAndRegisterFactFromFragments = "verify_and_register_fact_from_fragments"
	EntryPointUpgradeState                       = "upgrade_state"
)

// selectors is computed once; entry point identifiers are protocol constants.
var selectors = func() map[string]types.Felt {
	m := make(map[string]types.Felt)
	for _, name := range []string{
		EntryPointPublishFragment,
		EntryPointVerifyAndRegisterFactFromFragments,
		EntryPointUpgradeState,
	} {
		m[name] = SelectorFromName(name)
	}
	return m
}()

var (
	SelectorPublishFragment                    = selectors[EntryPointPublishFragment]
	SelectorVerifyAndRegisterFactFromFragments = selectors[EntryPointVerifyAndRegisterFactFromFragments]
	SelectorUpgradeState                       = selectors[EntryPointUpgradeState]
)

// Selector returns the precomputed selector of a known entry point.
func Selector(name string) (types.Felt, bool) {
	s, ok := selectors[name]
	return s, ok
}

// SelectorFromName derives an entry point selector: starknet-keccak of the name.
func SelectorFromName(name string) types.Felt {
	return StarknetKeccak([]byte(name))
}

// StarknetKeccak is keccak256 truncated to its low 250 bits.
func StarknetKeccak(data []byte) types.Felt {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	sum := h.Sum(nil)
	sum[0] &= 0x03
	return types.FeltFromBytes(sum)
}
