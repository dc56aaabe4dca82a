package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/neotheprogramist/dojo/chain"
	log "github.com/neotheprogramist/dojo/log"
	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/telemetry"
	"github.com/neotheprogramist/dojo/types"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultMaxFinalizeAttempts = 30
	DefaultRetryBackoff        = time.Second
)

// Submitter sends proofs to a fact registry from one account. The account nonce is
// owned by the call in progress: concurrent StarknetVerify calls on the same account
// must be serialized by the caller.
type Submitter struct {
	account             chain.Account
	waiter              *Waiter
	hasher              Hasher
	chunkSize           int
	maxFinalizeAttempts int
	retryBackoff        time.Duration
}

type Option func(*Submitter)

func WithChunkSize(n int) Option {
	return func(s *Submitter) { s.chunkSize = n }
}

func WithHasher(h Hasher) Option {
	return func(s *Submitter) { s.hasher = h }
}

func WithWaiter(w *Waiter) Option {
	return func(s *Submitter) { s.waiter = w }
}

func WithFinalizeRetry(attempts int, backoff time.Duration) Option {
	return func(s *Submitter) {
		s.maxFinalizeAttempts = attempts
		s.retryBackoff = backoff
	}
}

func NewSubmitter(account chain.Account, opts ...Option) *Submitter {
	s := &Submitter{
		account:             account,
		waiter:              NewWaiter(account),
		hasher:              PoseidonHasher{},
		chunkSize:           DefaultChunkSize,
		maxFinalizeAttempts: DefaultMaxFinalizeAttempts,
		retryBackoff:        DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StarknetVerify publishes proof as fragments to registry, then registers the fact
// from the fragment hashes. It returns the finalize transaction hash and the nonce
// that follows it. An empty proof publishes nothing and finalizes [0, versionTag].
func (s *Submitter) StarknetVerify(ctx context.Context, registry types.Felt, proof []types.Felt, versionTag types.Felt) (txHash string, nextNonce types.Felt, err error) {
	ctx, span := telemetry.StartSpan(ctx, "verifier.StarknetVerify",
		attribute.Int("proof_len", len(proof)),
		attribute.Int("chunk_size", s.chunkSize),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if len(proof) > s.chunkSize {
		log.Warn(log.VerifierMonitoring, "Calldata too long, splitting proof into fragments", "felts", len(proof), "chunkSize", s.chunkSize)
	}
	fragments, err := Fragments(proof, s.chunkSize, s.hasher)
	if err != nil {
		return "", types.Felt{}, err
	}

	nonce, err := s.account.Nonce(ctx)
	if err != nil {
		return "", types.Felt{}, fmt.Errorf("fetch nonce: %w", err)
	}
	publish := chain.SelectorPublishFragment
	for i, fragment := range fragments {
		call := types.Call{To: registry, Selector: publish, Calldata: fragment.Calldata}
		// Unlike the finalize call, a failed fragment send is not retried. Whether fragments
		// deserve the same bounded retry is still open.
		hash, err := s.account.Execute(ctx, []types.Call{call}, nonce)
		if err != nil {
			return "", types.Felt{}, fmt.Errorf("fragment %d/%d: %w: %w", i+1, len(fragments), sayaerrors.ErrVFragmentSendFailed, err)
		}
		log.Trace(log.VerifierMonitoring, "Sent publish_fragment transaction", "tx", hash, "fragment", i, "nonce", nonce, "felts", fragment.Len())
		if err := s.waiter.WaitForSentTransaction(ctx, hash); err != nil {
			return "", types.Felt{}, fmt.Errorf("fragment %d/%d: %w", i+1, len(fragments), err)
		}
		nonce = nonce.AddUint64(1)
	}

	finalize := types.Call{
		To:       registry,
		Selector: chain.SelectorVerifyAndRegisterFactFromFragments,
		Calldata: FinalizeCalldata(fragments, versionTag),
	}
	hash, nonce, err := s.executeWithRetry(ctx, finalize)
	if err != nil {
		return "", types.Felt{}, err
	}
	log.Debug(log.VerifierMonitoring, "Sent verify_and_register_fact_from_fragments transaction", "tx", hash, "nonce", nonce, "fragments", len(fragments))
	if err := s.waiter.WaitForSentTransaction(ctx, hash); err != nil {
		return "", types.Felt{}, fmt.Errorf("finalize: %w", err)
	}
	return hash.Hex(), nonce.AddUint64(1), nil
}

// executeWithRetry sends call with a freshly fetched nonce, retrying send failures up to
// the configured bound. Other senders may share the account, so the nonce is re-read
// before every attempt.
func (s *Submitter) executeWithRetry(ctx context.Context, call types.Call) (types.Felt, types.Felt, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxFinalizeAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return types.Felt{}, types.Felt{}, ctx.Err()
			case <-time.After(s.retryBackoff):
			}
		}
		nonce, err := s.account.Nonce(ctx)
		if err != nil {
			lastErr = fmt.Errorf("fetch nonce: %w", err)
			log.Warn(log.VerifierMonitoring, "Finalize attempt failed", "attempt", attempt, "err", lastErr)
			continue
		}
		hash, err := s.account.Execute(ctx, []types.Call{call}, nonce)
		if err == nil {
			return hash, nonce, nil
		}
		lastErr = err
		log.Warn(log.VerifierMonitoring, "Finalize attempt failed", "attempt", attempt, "nonce", nonce, "err", err)
	}
	return types.Felt{}, types.Felt{}, fmt.Errorf("%w: %d attempts: %w", sayaerrors.ErrVFinalizeRetriesExhausted, s.maxFinalizeAttempts, lastErr)
}

// ApplyDiffs sends upgrade_state to the world contract with
// [len(newState)/2, newState..., programOutput..., programHash] and waits for it.
func (s *Submitter) ApplyDiffs(ctx context.Context, world types.Felt, newState, programOutput []types.Felt, programHash types.Felt) (string, types.Felt, error) {
	calldata := make([]types.Felt, 0, len(newState)+len(programOutput)+2)
	calldata = append(calldata, types.NewFelt(uint64(len(newState)/2)))
	calldata = append(calldata, newState...)
	calldata = append(calldata, programOutput...)
	calldata = append(calldata, programHash)

	nonce, err := s.account.Nonce(ctx)
	if err != nil {
		return "", types.Felt{}, fmt.Errorf("fetch nonce: %w", err)
	}
	call := types.Call{To: world, Selector: chain.SelectorUpgradeState, Calldata: calldata}
	hash, err := s.account.Execute(ctx, []types.Call{call}, nonce)
	if err != nil {
		return "", types.Felt{}, fmt.Errorf("send upgrade_state: %w", err)
	}
	if err := s.waiter.WaitForSentTransaction(ctx, hash); err != nil {
		return "", types.Felt{}, fmt.Errorf("upgrade_state: %w", err)
	}
	return hash.Hex(), nonce.AddUint64(1), nil
}
