package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]func(params []json.RawMessage) (any, *rpcError)
	calls    []string
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, req.Method)
	h, ok := f.handlers[req.Method]
	f.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = rpcError{Code: -32601, Message: "method not found"}
	} else if result, rerr := h(req.Params); rerr != nil {
		resp["error"] = rerr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func newFakeNode(t *testing.T) (*fakeNode, *RPCClient) {
	node := &fakeNode{handlers: make(map[string]func([]json.RawMessage) (any, *rpcError))}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	client, err := DialRPC(context.Background(), srv.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return node, client
}

func TestRPCClientBlockNumberAndBlock(t *testing.T) {
	node, client := newFakeNode(t)
	node.handlers["starknet_blockNumber"] = func([]json.RawMessage) (any, *rpcError) { return 42, nil }
	node.handlers["starknet_getBlockWithTxs"] = func(params []json.RawMessage) (any, *rpcError) {
		var id blockID
		assert.NoError(t, json.Unmarshal(params[0], &id))
		if id.BlockNumber > 42 {
			return nil, &rpcError{Code: errCodeBlockNotFound, Message: "Block not found"}
		}
		return map[string]any{
			"block_number": id.BlockNumber,
			"block_hash":   "0xabc",
			"parent_hash":  "0xab",
			"new_root":     "0x77",
			"timestamp":    1700000000,
			"transactions": []map[string]any{
				{"transaction_hash": "0x1", "type": "INVOKE", "calldata": []string{}},
				{"transaction_hash": "0x2", "type": "L1_HANDLER", "contract_address": "0x99",
					"entry_point_selector": "0x5", "nonce": "0x3", "calldata": []string{"0xe1", "0x7"}},
			},
		}, nil
	}

	n, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	b, err := client.FetchBlock(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), b.Number)
	assert.Equal(t, types.MustFelt("0x77"), b.StateRoot)
	require.Len(t, b.L1Handlers(), 1)
	assert.Equal(t, types.MustFelt("0x99"), b.L1Handlers()[0].ContractAddress)

	_, err = client.FetchBlock(context.Background(), 43)
	assert.ErrorIs(t, err, sayaerrors.ErrCBlockNotFound)
}

func TestRPCClientStateUpdate(t *testing.T) {
	node, client := newFakeNode(t)
	node.handlers["starknet_getStateUpdate"] = func([]json.RawMessage) (any, *rpcError) {
		return map[string]any{
			"block_hash": "0x1",
			"new_root":   "0x3",
			"old_root":   "0x2",
			"state_diff": map[string]any{
				"storage_diffs": []map[string]any{
					{"address": "0xa", "storage_entries": []map[string]string{{"key": "0x1", "value": "0x2"}}},
				},
				"declared_classes":   []map[string]string{{"class_hash": "0xc", "compiled_class_hash": "0xcc"}},
				"deployed_contracts": []map[string]string{{"address": "0xb", "class_hash": "0xc"}},
				"replaced_classes":   []map[string]string{},
				"nonces":             []map[string]string{{"contract_address": "0xa", "nonce": "0x4"}},
			},
		}, nil
	}

	su, err := client.FetchStateUpdate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.NewFelt(2), su.OldRoot)
	assert.Equal(t, types.NewFelt(2), su.StateDiff.StorageUpdates[types.NewFelt(0xa)][types.NewFelt(1)])
	assert.Equal(t, types.NewFelt(0xcc), su.StateDiff.DeclaredClasses[types.NewFelt(0xc)])
	assert.Equal(t, types.NewFelt(0xc), su.StateDiff.ContractUpdates[types.NewFelt(0xb)])
	assert.Equal(t, types.NewFelt(4), su.StateDiff.NonceUpdates[types.NewFelt(0xa)])
}

func TestRPCClientProviderFailure(t *testing.T) {
	_, client := newFakeNode(t)
	_, err := client.FetchTransactionExecutions(context.Background(), 1)
	assert.ErrorIs(t, err, sayaerrors.ErrCProviderFailed)
	assert.True(t, sayaerrors.IsTransient(err))
}

type staticSigner struct {
	gotNonce types.Felt
}

func (s *staticSigner) Sign(_ context.Context, _ types.Felt, _ []types.Felt, nonce types.Felt) ([]types.Felt, types.Felt, error) {
	s.gotNonce = nonce
	return []types.Felt{types.NewFelt(11), types.NewFelt(12)}, types.NewFelt(1000), nil
}

func TestRPCAccountExecute(t *testing.T) {
	node, client := newFakeNode(t)
	sentCh := make(chan InvokeTransaction, 1)
	node.handlers["starknet_addInvokeTransaction"] = func(params []json.RawMessage) (any, *rpcError) {
		var tx InvokeTransaction
		assert.NoError(t, json.Unmarshal(params[0], &tx))
		sentCh <- tx
		return map[string]string{"transaction_hash": "0xfeed"}, nil
	}
	node.handlers["starknet_getNonce"] = func(params []json.RawMessage) (any, *rpcError) {
		var tag string
		assert.NoError(t, json.Unmarshal(params[0], &tag))
		assert.Equal(t, "pending", tag)
		return "0x9", nil
	}
	node.handlers["starknet_getTransactionStatus"] = func([]json.RawMessage) (any, *rpcError) {
		return map[string]string{"finality_status": "ACCEPTED_ON_L2", "execution_status": "SUCCEEDED"}, nil
	}

	signer := &staticSigner{}
	acc := NewRPCAccount(client, types.NewFelt(0x5e), signer)

	nonce, err := acc.Nonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.NewFelt(9), nonce)

	call := types.Call{To: types.NewFelt(1), Selector: SelectorPublishFragment, Calldata: []types.Felt{types.NewFelt(1), types.NewFelt(7)}}
	hash, err := acc.Execute(context.Background(), []types.Call{call}, nonce)
	require.NoError(t, err)
	assert.Equal(t, types.NewFelt(0xfeed), hash)
	assert.Equal(t, nonce, signer.gotNonce)
	sent := <-sentCh
	assert.Equal(t, "INVOKE", sent.Type)
	assert.Equal(t, nonce, sent.Nonce)
	assert.Equal(t, EncodeExecuteCalldata([]types.Call{call}), sent.Calldata)
	assert.Equal(t, types.NewFelt(1000), sent.MaxFee)

	st, err := acc.TransactionStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, types.TransactionStatus{Finality: types.FinalityAcceptedOnL2, Execution: types.ExecutionSucceeded}, st)
}

func TestRPCAccountWithoutSigner(t *testing.T) {
	_, client := newFakeNode(t)
	acc := NewRPCAccount(client, types.NewFelt(1), nil)
	_, err := acc.Execute(context.Background(), nil, types.FeltZero)
	assert.ErrorIs(t, err, sayaerrors.ErrCNoSigner)
}
