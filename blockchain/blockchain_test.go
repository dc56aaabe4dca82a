package blockchain

import (
	"testing"

	"github.com/neotheprogramist/dojo/storage"
	"github.com/neotheprogramist/dojo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	store, err := storage.NewMemoryPersistenceStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewLedger(store)
}

func TestLedgerRecordsBlocks(t *testing.T) {
	l := newTestLedger(t)

	_, ok, err := l.Head()
	require.NoError(t, err)
	assert.False(t, ok)

	for n := uint64(0); n < 3; n++ {
		blk := &types.Block{Number: n, Hash: types.NewFelt(100 + n), StateRoot: types.NewFelt(200 + n)}
		su := &types.StateUpdate{BlockHash: blk.Hash, NewRoot: blk.StateRoot, StateDiff: types.NewStateUpdates()}
		su.StateDiff.NonceUpdates[types.NewFelt(1)] = types.NewFelt(n)
		if n > 0 {
			su.OldRoot = types.NewFelt(200 + n - 1)
		}
		require.NoError(t, l.UpdateStateWithBlock(blk, su))
	}

	head, ok, err := l.Head()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), head)

	rec, ok, err := l.Block(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.NewFelt(201), rec.StateRoot)
	assert.Equal(t, types.NewFelt(101), rec.Hash)

	su, ok, err := l.StateUpdate(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.NewFelt(2), su.StateDiff.NonceUpdates[types.NewFelt(1)])
}

func TestLedgerHeadDoesNotRegress(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.UpdateStateWithBlock(&types.Block{Number: 5}, &types.StateUpdate{}))
	require.NoError(t, l.UpdateStateWithBlock(&types.Block{Number: 3}, &types.StateUpdate{}))

	head, _, err := l.Head()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), head)

	_, ok, err := l.Block(4)
	require.NoError(t, err)
	assert.False(t, ok)
}
