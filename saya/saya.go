// Package saya drives the proving pipeline: it follows the sequencer head, turns every
// new block into a program input, proves it and registers the proof on the settlement
// chain.
package saya

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neotheprogramist/dojo/blockchain"
	"github.com/neotheprogramist/dojo/chain"
	"github.com/neotheprogramist/dojo/config"
	"github.com/neotheprogramist/dojo/dataavailability"
	log "github.com/neotheprogramist/dojo/log"
	"github.com/neotheprogramist/dojo/prover"
	"github.com/neotheprogramist/dojo/telemetry"
	"github.com/neotheprogramist/dojo/types"
	"github.com/neotheprogramist/dojo/verifier"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const DefaultFetchConcurrency = 16

var ErrAlreadyRunning = errors.New("saya: pipeline already running")

// BlockResult reports what happened to one block.
type BlockResult struct {
	Number uint64
	// Skipped is set for blocks without transactions, which are recorded but not proven.
	Skipped bool
	Input   *types.ProgramInput
	TxHash  string
	Nonce   types.Felt
}

type Saya struct {
	mu      sync.Mutex
	running bool

	cfg       *config.Config
	provider  chain.Provider
	prover    prover.Prover
	encode    prover.InputEncoder
	submitter *verifier.Submitter
	da        dataavailability.Client
	ledger    *blockchain.Ledger

	pollInterval     time.Duration
	fetchConcurrency int
	onBlock          func(BlockResult)

	cursor           atomic.Uint64
	genesisStateHash types.Felt
}

type Option func(*Saya)

// WithBlockProcessed registers fn to be called after every block, from the pipeline
// goroutine.
func WithBlockProcessed(fn func(BlockResult)) Option {
	return func(s *Saya) { s.onBlock = fn }
}

func WithSubmitter(sub *verifier.Submitter) Option {
	return func(s *Saya) { s.submitter = sub }
}

func WithFetchConcurrency(n int) Option {
	return func(s *Saya) { s.fetchConcurrency = n }
}

// New builds a pipeline. account signs every settlement transaction; da may be nil to
// skip data-availability publication.
func New(cfg *config.Config, provider chain.Provider, account chain.Account, p prover.Prover, da dataavailability.Client, ledger *blockchain.Ledger, opts ...Option) *Saya {
	s := &Saya{
		cfg:              cfg,
		provider:         provider,
		prover:           p,
		encode:           prover.JSONInput,
		da:               da,
		ledger:           ledger,
		pollInterval:     cfg.PollInterval.Duration,
		fetchConcurrency: DefaultFetchConcurrency,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = time.Second
	}
	if cfg.ProverInputFormat == config.InputFormatDiffer {
		s.encode = prover.DifferInput(cfg.WorldAddress)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.submitter == nil {
		s.submitter = verifier.NewSubmitter(account, verifier.WithChunkSize(cfg.ChunkSize))
	}
	return s
}

// Cursor is the next block to be processed.
func (s *Saya) Cursor() uint64 {
	return s.cursor.Load()
}

func (s *Saya) GenesisStateHash() types.Felt {
	return s.genesisStateHash
}

// Start processes every block from max(StartBlock, 1) onward. It only returns on error
// or when ctx is done. Block 0 is never proven; it anchors the state root chain.
func (s *Saya) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	cursor := max(s.cfg.StartBlock, 1)
	var genesis, before *types.Block
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		genesis, err = s.provider.FetchBlock(gctx, 0)
		return err
	})
	g.Go(func() (err error) {
		before, err = s.provider.FetchBlock(gctx, cursor-1)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch anchor blocks: %w", err)
	}
	s.genesisStateHash = genesis.StateRoot
	previousStateRoot := before.StateRoot
	s.cursor.Store(cursor)

	log.Info(log.PipelineMonitoring, "Saya: Starting",
		"from", cursor,
		"genesisStateHash", s.genesisStateHash,
		"previousStateRoot", previousStateRoot,
		"pollInterval", s.pollInterval)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		head, err := s.provider.BlockNumber(ctx)
		if err != nil {
			log.Error(log.PipelineMonitoring, "Saya: Fetching head failed", "err", err)
			if err := s.sleep(ctx); err != nil {
				return err
			}
			continue
		}
		// [cursor, head) is empty when the head has not moved past the cursor
		if cursor >= head {
			log.Trace(log.PipelineMonitoring, "Saya: Waiting for block", "block", cursor, "head", head)
			if err := s.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		blocks, err := s.fetchBlocks(ctx, cursor, head)
		if err != nil {
			return err
		}
		var preRoots []types.Felt
		preRoots, previousStateRoot = shiftStateRoots(blocks, previousStateRoot)

		for i, block := range blocks {
			if err := s.processBlock(ctx, block, preRoots[i]); err != nil {
				return fmt.Errorf("block %d: %w", block.Number, err)
			}
			cursor++
			s.cursor.Store(cursor)
		}
	}
}

func (s *Saya) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.pollInterval):
		return nil
	}
}

// fetchBlocks fetches [from, to) concurrently and returns them in block order.
func (s *Saya) fetchBlocks(ctx context.Context, from, to uint64) ([]*types.Block, error) {
	blocks := make([]*types.Block, to-from)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i := range blocks {
		n := from + uint64(i)
		g.Go(func() error {
			b, err := s.provider.FetchBlock(gctx, n)
			if err != nil {
				return fmt.Errorf("fetch block %d: %w", n, err)
			}
			blocks[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// shiftStateRoots returns the pre-state root of every block, which is the post-state
// root of the block before it, and the post-state root of the last block.
func shiftStateRoots(blocks []*types.Block, previous types.Felt) ([]types.Felt, types.Felt) {
	pre := make([]types.Felt, len(blocks))
	for i, b := range blocks {
		pre[i] = previous
		previous = b.StateRoot
	}
	return pre, previous
}

func (s *Saya) notify(r BlockResult) {
	if s.onBlock != nil {
		s.onBlock(r)
	}
}

func (s *Saya) processBlock(ctx context.Context, block *types.Block, prevStateRoot types.Felt) (err error) {
	n := block.Number
	ctx, span := telemetry.StartSpan(ctx, "saya.processBlock", attribute.Int64("block", int64(n)))
	defer func() { telemetry.EndSpan(span, err) }()
	log.Trace(log.PipelineMonitoring, "Processing block", "block", n)

	update, err := s.provider.FetchStateUpdate(ctx, n)
	if err != nil {
		return fmt.Errorf("fetch state update: %w", err)
	}
	if s.da != nil {
		if err := s.da.PublishStateDiffFelts(ctx, update.DAFelts()); err != nil {
			return fmt.Errorf("publish state diff: %w", err)
		}
	}
	if err := s.ledger.UpdateStateWithBlock(block, update); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	execs, err := s.provider.FetchTransactionExecutions(ctx, n)
	if err != nil {
		return fmt.Errorf("fetch executions: %w", err)
	}
	if len(execs) == 0 {
		log.Trace(log.PipelineMonitoring, "Skipping empty block", "block", n)
		s.notify(BlockResult{Number: n, Skipped: true})
		return nil
	}

	toStarknet, toAppchain := prover.ExtractMessages(execs, block.L1Handlers())
	input := types.ProgramInput{
		PrevStateRoot:            prevStateRoot,
		BlockNumber:              n,
		BlockHash:                block.Hash,
		ConfigHash:               types.FeltZero,
		MessageToStarknetSegment: toStarknet,
		MessageToAppchainSegment: toAppchain,
		StateUpdates:             update.StateDiff,
	}
	worldDA := input.DAAsCalldata(s.cfg.WorldAddress)
	log.Trace(log.PipelineMonitoring, "World DA", "block", n, "da", types.FeltsToStrings(worldDA))

	res, err := prover.ProveRecursivelyWith(ctx, []types.ProgramInput{input}, s.prover, s.encode)
	if err != nil {
		return err
	}

	result := BlockResult{Number: n, Input: &input}
	for _, proof := range res.Proofs {
		felts, err := prover.ParseProof(proof)
		if err != nil {
			return err
		}
		txHash, nonce, err := s.submitter.StarknetVerify(ctx, s.cfg.FactRegistryAddress, felts, s.cfg.CairoVersion)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		log.Info(log.PipelineMonitoring, "Block verified", "block", n, "tx", txHash, "nonce", nonce)
		result.TxHash, result.Nonce = txHash, nonce

		if s.cfg.ApplyDiffs {
			out, err := prover.ExtractOutput(proof)
			if err != nil {
				return err
			}
			txHash, _, err := s.submitter.ApplyDiffs(ctx, s.cfg.WorldAddress, worldDA, out.Output, out.ProgramHash)
			if err != nil {
				return fmt.Errorf("apply diffs: %w", err)
			}
			log.Info(log.PipelineMonitoring, "Diffs applied", "block", n, "tx", txHash)
		}
	}
	s.notify(result)
	return nil
}
