// Package chain defines the collaborators the pipeline and submitter talk to: a read-side
// Provider for sequencer blocks and a signing Account that sends invoke transactions.
package chain

import (
	"context"

	"github.com/neotheprogramist/dojo/types"
)

// Provider reads blocks and their derived data from the sequencer.
type Provider interface {
	// BlockNumber returns the current head height.
	BlockNumber(ctx context.Context) (uint64, error)
	FetchBlock(ctx context.Context, number uint64) (*types.Block, error)
	FetchStateUpdate(ctx context.Context, number uint64) (*types.StateUpdate, error)
	// FetchTransactionExecutions returns one entry per executed transaction. An empty
	// result means the block carried no transactions.
	FetchTransactionExecutions(ctx context.Context, number uint64) ([]types.TransactionExecution, error)
}

// Account is a signing account on the settlement chain. The nonce is owned by the
// caller: Execute sends with exactly the nonce given and does not track it.
type Account interface {
	Address() types.Felt
	Nonce(ctx context.Context) (types.Felt, error)
	// Execute signs and sends calls as one invoke transaction and returns its hash.
	Execute(ctx context.Context, calls []types.Call, nonce types.Felt) (types.Felt, error)
	TransactionStatus(ctx context.Context, txHash types.Felt) (types.TransactionStatus, error)
}

// Signer authorizes invoke transactions for an account.
type Signer interface {
	Sign(ctx context.Context, sender types.Felt, calldata []types.Felt, nonce types.Felt) (signature []types.Felt, maxFee types.Felt, err error)
}

// EncodeExecuteCalldata encodes calls for an account's __execute__ entry point:
// [call_count, (to, selector, calldata_len, calldata...)...].
func EncodeExecuteCalldata(calls []types.Call) []types.Felt {
	out := []types.Felt{types.NewFelt(uint64(len(calls)))}
	for _, c := range calls {
		out = append(out, c.To, c.Selector, types.NewFelt(uint64(len(c.Calldata))))
		out = append(out, c.Calldata...)
	}
	return out
}
