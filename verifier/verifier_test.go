package verifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neotheprogramist/dojo/chain"
	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/types"
	"github.com/stretchr/testify/require"
)

type sentTx struct {
	call  types.Call
	nonce types.Felt
}

// fakeAccount enforces nonce sequencing like a sequencer would.
type fakeAccount struct {
	mu       sync.Mutex
	nonce    uint64
	sent     []sentTx
	executes int
	// failOn maps the 1-based Execute call index to the error it returns.
	failOn   map[int]error
	onFail   func(a *fakeAccount)
	nonceErr error
	status   types.TransactionStatus
}

var _ chain.Account = (*fakeAccount)(nil)

func newFakeAccount(nonce uint64) *fakeAccount {
	return &fakeAccount{
		nonce:  nonce,
		failOn: map[int]error{},
		status: types.TransactionStatus{Finality: types.FinalityAcceptedOnL2},
	}
}

func (a *fakeAccount) Address() types.Felt { return types.NewFelt(0xacc) }

func (a *fakeAccount) Nonce(context.Context) (types.Felt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nonceErr != nil {
		return types.Felt{}, a.nonceErr
	}
	return types.NewFelt(a.nonce), nil
}

func (a *fakeAccount) Execute(_ context.Context, calls []types.Call, nonce types.Felt) (types.Felt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executes++
	if err, ok := a.failOn[a.executes]; ok {
		if a.onFail != nil {
			a.onFail(a)
		}
		return types.Felt{}, err
	}
	if nonce.Uint64() != a.nonce {
		return types.Felt{}, errors.New("invalid transaction nonce")
	}
	a.nonce++
	a.sent = append(a.sent, sentTx{call: calls[0], nonce: nonce})
	return types.NewFelt(uint64(0x1000 + len(a.sent))), nil
}

func (a *fakeAccount) TransactionStatus(context.Context, types.Felt) (types.TransactionStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, nil
}

func proofOf(n int) []types.Felt {
	out := make([]types.Felt, n)
	for i := range out {
		out[i] = types.NewFelt(uint64(i * 7))
	}
	return out
}

func fastSubmitter(acc *fakeAccount, opts ...Option) *Submitter {
	w := &Waiter{Client: acc, PollInterval: time.Millisecond, Timeout: time.Second}
	base := []Option{WithWaiter(w), WithFinalizeRetry(DefaultMaxFinalizeAttempts, time.Millisecond)}
	return NewSubmitter(acc, append(base, opts...)...)
}

func TestFragments(t *testing.T) {
	proof := proofOf(4001)
	a, err := Fragments(proof, 2000, PoseidonHasher{})
	require.NoError(t, err)
	b, err := Fragments(proof, 2000, PoseidonHasher{})
	require.NoError(t, err)
	require.Equal(t, a, b)

	require.Len(t, a, 3)
	require.Equal(t, []int{2000, 2000, 1}, []int{a[0].Len(), a[1].Len(), a[2].Len()})
	require.Equal(t, types.NewFelt(2000), a[0].Calldata[0])
	require.Equal(t, proof[2000:4000], a[1].Calldata[1:])
	require.Equal(t, PoseidonHasher{}.Hash(proof[4000:]), a[2].Hash)
	require.NotEqual(t, a[0].Hash, a[1].Hash)

	_, err = Fragments(proof, 0, PoseidonHasher{})
	require.ErrorIs(t, err, sayaerrors.ErrVInvalidChunkSize)
}

func TestPoseidonHasher(t *testing.T) {
	felts := []types.Felt{types.NewFelt(1), types.NewFelt(2)}
	require.Equal(t, chain.PoseidonHashMany(felts), PoseidonHasher{}.Hash(felts))
	require.NotEqual(t, PoseidonHasher{}.Hash(felts), PoseidonHasher{}.Hash(felts[:1]))
	// poseidon_hash_many of the empty sequence
	require.Equal(t,
		types.MustFelt("0x2272be0f580fd156823304800919530eaa97430e972d7213ee13f4fbf7a5dbc"),
		PoseidonHasher{}.Hash(nil))
}

func TestStarknetVerifyNonceAccounting(t *testing.T) {
	acc := newFakeAccount(5)
	registry := types.NewFelt(0xfac7)
	version := types.NewFelt(2)
	proof := proofOf(4000)

	txHash, next, err := fastSubmitter(acc).StarknetVerify(context.Background(), registry, proof, version)
	require.NoError(t, err)

	require.Len(t, acc.sent, 3)
	for i, tx := range acc.sent[:2] {
		require.Equal(t, chain.SelectorPublishFragment, tx.call.Selector)
		require.Equal(t, registry, tx.call.To)
		require.Equal(t, types.NewFelt(uint64(5+i)), tx.nonce)
		require.Equal(t, types.NewFelt(2000), tx.call.Calldata[0])
		require.Len(t, tx.call.Calldata, 2001)
	}

	final := acc.sent[2]
	require.Equal(t, chain.SelectorVerifyAndRegisterFactFromFragments, final.call.Selector)
	require.Equal(t, types.NewFelt(7), final.nonce)
	require.Equal(t, []types.Felt{
		types.NewFelt(2),
		PoseidonHasher{}.Hash(proof[:2000]),
		PoseidonHasher{}.Hash(proof[2000:]),
		version,
	}, final.call.Calldata)

	require.Equal(t, types.NewFelt(0x1003).Hex(), txHash)
	require.Equal(t, types.NewFelt(8), next)
}

func TestStarknetVerifyFragmentSendNotRetried(t *testing.T) {
	acc := newFakeAccount(0)
	boom := errors.New("connection reset")
	acc.failOn[1] = boom

	_, _, err := fastSubmitter(acc).StarknetVerify(context.Background(), types.NewFelt(1), proofOf(10), types.NewFelt(1))
	require.ErrorIs(t, err, sayaerrors.ErrVFragmentSendFailed)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, acc.executes)
	require.Empty(t, acc.sent)
}

func TestStarknetVerifyFinalizeRetriesWithFreshNonce(t *testing.T) {
	acc := newFakeAccount(0)
	// the two first finalize attempts lose a race against another sender
	acc.failOn[2] = errors.New("invalid transaction nonce")
	acc.failOn[3] = errors.New("invalid transaction nonce")
	acc.onFail = func(a *fakeAccount) { a.nonce++ }

	_, next, err := fastSubmitter(acc).StarknetVerify(context.Background(), types.NewFelt(1), proofOf(10), types.NewFelt(1))
	require.NoError(t, err)
	require.Equal(t, 4, acc.executes)
	require.Len(t, acc.sent, 2)
	require.Equal(t, types.NewFelt(3), acc.sent[1].nonce)
	require.Equal(t, types.NewFelt(4), next)
}

func TestStarknetVerifyFinalizeRetriesExhausted(t *testing.T) {
	acc := newFakeAccount(0)
	for i := 2; i <= 4; i++ {
		acc.failOn[i] = errors.New("insufficient max fee")
	}

	s := fastSubmitter(acc, WithFinalizeRetry(3, time.Millisecond))
	_, _, err := s.StarknetVerify(context.Background(), types.NewFelt(1), proofOf(10), types.NewFelt(1))
	require.ErrorIs(t, err, sayaerrors.ErrVFinalizeRetriesExhausted)
	require.Contains(t, err.Error(), "insufficient max fee")
	require.Equal(t, 4, acc.executes)
}

func TestStarknetVerifyRevertedFragment(t *testing.T) {
	acc := newFakeAccount(0)
	acc.status = types.TransactionStatus{Finality: types.FinalityAcceptedOnL2, Execution: types.ExecutionReverted}

	_, _, err := fastSubmitter(acc).StarknetVerify(context.Background(), types.NewFelt(1), proofOf(10), types.NewFelt(1))
	require.ErrorIs(t, err, sayaerrors.ErrVTransactionReverted)
	require.Len(t, acc.sent, 1)
}

func TestStarknetVerifyEmptyProof(t *testing.T) {
	acc := newFakeAccount(4)
	version := types.NewFelt(7)
	registry := types.NewFelt(0xfac7)

	txHash, next, err := fastSubmitter(acc).StarknetVerify(context.Background(), registry, []types.Felt{}, version)
	require.NoError(t, err)
	require.Equal(t, 1, acc.executes)
	require.Len(t, acc.sent, 1)
	require.Equal(t, chain.SelectorVerifyAndRegisterFactFromFragments, acc.sent[0].call.Selector)
	require.Equal(t, []types.Felt{types.FeltZero, version}, acc.sent[0].call.Calldata)
	require.Equal(t, types.NewFelt(4), acc.sent[0].nonce)
	require.Equal(t, types.NewFelt(0x1001).Hex(), txHash)
	require.Equal(t, types.NewFelt(5), next)
}

func TestApplyDiffs(t *testing.T) {
	acc := newFakeAccount(9)
	world := types.NewFelt(0x3e1d)
	newState := []types.Felt{types.NewFelt(1), types.NewFelt(10), types.NewFelt(2), types.NewFelt(20)}
	output := []types.Felt{types.NewFelt(0xa), types.NewFelt(0xb)}

	txHash, next, err := fastSubmitter(acc).ApplyDiffs(context.Background(), world, newState, output, types.NewFelt(0x9a5))
	require.NoError(t, err)
	require.Equal(t, types.NewFelt(0x1001).Hex(), txHash)
	require.Equal(t, types.NewFelt(10), next)

	require.Len(t, acc.sent, 1)
	require.Equal(t, chain.SelectorUpgradeState, acc.sent[0].call.Selector)
	require.Equal(t, world, acc.sent[0].call.To)
	require.Equal(t, []types.Felt{
		types.NewFelt(2),
		types.NewFelt(1), types.NewFelt(10), types.NewFelt(2), types.NewFelt(20),
		types.NewFelt(0xa), types.NewFelt(0xb),
		types.NewFelt(0x9a5),
	}, acc.sent[0].call.Calldata)
}
