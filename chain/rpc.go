package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	log "github.com/neotheprogramist/dojo/log"
	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/types"
)

// Starknet JSON-RPC error code for an unknown block.
const errCodeBlockNotFound = 24

type blockID struct {
	BlockNumber uint64 `json:"block_number"`
}

// RPCClient is a Provider over a Starknet JSON-RPC endpoint (http or ws).
type RPCClient struct {
	client *rpc.Client
	url    string
}

var _ Provider = (*RPCClient)(nil)

func DialRPC(ctx context.Context, url string) (*RPCClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &RPCClient{client: c, url: url}, nil
}

func (c *RPCClient) Close() {
	c.client.Close()
}

func (c *RPCClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	err := c.client.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}
	log.Debug(log.ChainMonitoring, "RPC call failed", "method", method, "url", c.url, "err", err)
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == errCodeBlockNotFound {
		return fmt.Errorf("%s: %w: %v", method, sayaerrors.ErrCBlockNotFound, err)
	}
	return fmt.Errorf("%s: %w: %v", method, sayaerrors.ErrCProviderFailed, err)
}

func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.call(ctx, &n, "starknet_blockNumber")
	return n, err
}

func (c *RPCClient) FetchBlock(ctx context.Context, number uint64) (*types.Block, error) {
	var b types.Block
	if err := c.call(ctx, &b, "starknet_getBlockWithTxs", blockID{number}); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *RPCClient) FetchStateUpdate(ctx context.Context, number uint64) (*types.StateUpdate, error) {
	var su rpcStateUpdate
	if err := c.call(ctx, &su, "starknet_getStateUpdate", blockID{number}); err != nil {
		return nil, err
	}
	return su.toStateUpdate(), nil
}

func (c *RPCClient) FetchTransactionExecutions(ctx context.Context, number uint64) ([]types.TransactionExecution, error) {
	var execs []types.TransactionExecution
	if err := c.call(ctx, &execs, "saya_getTransactionExecutionsByBlock", blockID{number}); err != nil {
		return nil, err
	}
	return execs, nil
}

func (c *RPCClient) GetNonce(ctx context.Context, address types.Felt) (types.Felt, error) {
	var nonce types.Felt
	err := c.call(ctx, &nonce, "starknet_getNonce", "pending", address)
	return nonce, err
}

func (c *RPCClient) GetTransactionStatus(ctx context.Context, txHash types.Felt) (types.TransactionStatus, error) {
	var st types.TransactionStatus
	err := c.call(ctx, &st, "starknet_getTransactionStatus", txHash)
	return st, err
}

// InvokeTransaction is a signed INVOKE v1 transaction as accepted by
// starknet_addInvokeTransaction.
type InvokeTransaction struct {
	Type          string       `json:"type"`
	Version       string       `json:"version"`
	SenderAddress types.Felt   `json:"sender_address"`
	Calldata      []types.Felt `json:"calldata"`
	MaxFee        types.Felt   `json:"max_fee"`
	Signature     []types.Felt `json:"signature"`
	Nonce         types.Felt   `json:"nonce"`
}

func (c *RPCClient) AddInvokeTransaction(ctx context.Context, tx *InvokeTransaction) (types.Felt, error) {
	var res struct {
		TransactionHash types.Felt `json:"transaction_hash"`
	}
	if err := c.call(ctx, &res, "starknet_addInvokeTransaction", tx); err != nil {
		return types.Felt{}, err
	}
	return res.TransactionHash, nil
}

// RPCAccount is an Account whose reads and broadcasts go over RPC and whose
// transactions are authorized by a Signer.
type RPCAccount struct {
	client  *RPCClient
	address types.Felt
	signer  Signer
}

var _ Account = (*RPCAccount)(nil)

func NewRPCAccount(client *RPCClient, address types.Felt, signer Signer) *RPCAccount {
	return &RPCAccount{client: client, address: address, signer: signer}
}

func (a *RPCAccount) Address() types.Felt { return a.address }

func (a *RPCAccount) Nonce(ctx context.Context) (types.Felt, error) {
	return a.client.GetNonce(ctx, a.address)
}

func (a *RPCAccount) Execute(ctx context.Context, calls []types.Call, nonce types.Felt) (types.Felt, error) {
	if a.signer == nil {
		return types.Felt{}, sayaerrors.ErrCNoSigner
	}
	calldata := EncodeExecuteCalldata(calls)
	sig, maxFee, err := a.signer.Sign(ctx, a.address, calldata, nonce)
	if err != nil {
		return types.Felt{}, fmt.Errorf("sign invoke: %w", err)
	}
	return a.client.AddInvokeTransaction(ctx, &InvokeTransaction{
		Type:          "INVOKE",
		Version:       "0x1",
		SenderAddress: a.address,
		Calldata:      calldata,
		MaxFee:        maxFee,
		Signature:     sig,
		Nonce:         nonce,
	})
}

func (a *RPCAccount) TransactionStatus(ctx context.Context, txHash types.Felt) (types.TransactionStatus, error) {
	return a.client.GetTransactionStatus(ctx, txHash)
}

type rpcStateUpdate struct {
	BlockHash types.Felt `json:"block_hash"`
	NewRoot   types.Felt `json:"new_root"`
	OldRoot   types.Felt `json:"old_root"`
	StateDiff struct {
		StorageDiffs []struct {
			Address        types.Felt `json:"address"`
			StorageEntries []struct {
				Key   types.Felt `json:"key"`
				Value types.Felt `json:"value"`
			} `json:"storage_entries"`
		} `json:"storage_diffs"`
		DeclaredClasses []struct {
			ClassHash         types.Felt `json:"class_hash"`
			CompiledClassHash types.Felt `json:"compiled_class_hash"`
		} `json:"declared_classes"`
		DeployedContracts []struct {
			Address   types.Felt `json:"address"`
			ClassHash types.Felt `json:"class_hash"`
		} `json:"deployed_contracts"`
		ReplacedClasses []struct {
			ContractAddress types.Felt `json:"contract_address"`
			ClassHash       types.Felt `json:"class_hash"`
		} `json:"replaced_classes"`
		Nonces []struct {
			ContractAddress types.Felt `json:"contract_address"`
			Nonce           types.Felt `json:"nonce"`
		} `json:"nonces"`
	} `json:"state_diff"`
}

func (r *rpcStateUpdate) toStateUpdate() *types.StateUpdate {
	diff := types.NewStateUpdates()
	for _, sd := range r.StateDiff.StorageDiffs {
		writes, ok := diff.StorageUpdates[sd.Address]
		if !ok {
			writes = make(map[types.Felt]types.Felt, len(sd.StorageEntries))
			diff.StorageUpdates[sd.Address] = writes
		}
		for _, e := range sd.StorageEntries {
			writes[e.Key] = e.Value
		}
	}
	for _, dc := range r.StateDiff.DeclaredClasses {
		diff.DeclaredClasses[dc.ClassHash] = dc.CompiledClassHash
	}
	for _, d := range r.StateDiff.DeployedContracts {
		diff.ContractUpdates[d.Address] = d.ClassHash
	}
	for _, rc := range r.StateDiff.ReplacedClasses {
		diff.ContractUpdates[rc.ContractAddress] = rc.ClassHash
	}
	for _, n := range r.StateDiff.Nonces {
		diff.NonceUpdates[n.ContractAddress] = n.Nonce
	}
	return &types.StateUpdate{
		BlockHash: r.BlockHash,
		NewRoot:   r.NewRoot,
		OldRoot:   r.OldRoot,
		StateDiff: diff,
	}
}
