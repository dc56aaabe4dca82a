package prover

import (
	"context"
	"fmt"
	"time"

	log "github.com/neotheprogramist/dojo/log"
	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/telemetry"
	"github.com/neotheprogramist/dojo/types"
	"go.opentelemetry.io/otel/attribute"
)

// ProofResult is the output of one node of the proving tree: the proofs of every leaf
// below it in block order, and the input combined over the node's whole range.
type ProofResult struct {
	Proofs []string
	Input  types.ProgramInput
}

// InputEncoder renders one program input in the form the prover backend reads.
type InputEncoder func(types.ProgramInput) (string, error)

// JSONInput encodes an input as its JSON document.
func JSONInput(in types.ProgramInput) (string, error) {
	return in.Serialize()
}

// DifferInput encodes an input as a one-element differ argument list over the storage
// diff of world.
func DifferInput(world types.Felt) InputEncoder {
	return func(in types.ProgramInput) (string, error) {
		return types.PrepareDifferArgs([]types.ProgramInput{in}, world), nil
	}
}

// ProveRecursively proves inputs, which must be in ascending block order, as a
// balanced binary tree: a single input is proven directly, longer runs are split at
// len/2 and both halves are proven concurrently before their inputs are combined.
//
// The first failure in either half is returned as soon as it is seen. The other half
// is not cancelled and may run to completion in the background.
func ProveRecursively(ctx context.Context, inputs []types.ProgramInput, p Prover) (*ProofResult, error) {
	return ProveRecursivelyWith(ctx, inputs, p, JSONInput)
}

// ProveRecursivelyWith is ProveRecursively with leaves encoded by encode.
func ProveRecursivelyWith(ctx context.Context, inputs []types.ProgramInput, p Prover, encode InputEncoder) (*ProofResult, error) {
	if len(inputs) == 0 {
		return nil, sayaerrors.ErrINoProgramInputs
	}
	ctx, span := telemetry.StartSpan(ctx, "prover.ProveRecursively",
		attribute.Int("inputs", len(inputs)),
		attribute.Int64("first_block", int64(inputs[0].BlockNumber)),
		attribute.Int64("last_block", int64(inputs[len(inputs)-1].BlockNumber)),
	)
	res, err := prove(ctx, inputs, p, encode)
	telemetry.EndSpan(span, err)
	return res, err
}

type branchResult struct {
	left bool
	res  *ProofResult
	err  error
}

func prove(ctx context.Context, inputs []types.ProgramInput, p Prover, encode InputEncoder) (*ProofResult, error) {
	if len(inputs) == 1 {
		return proveLeaf(ctx, inputs[0], p, encode)
	}

	mid := len(inputs) / 2
	// buffered so a branch that finishes after its sibling failed never blocks
	done := make(chan branchResult, 2)
	go func() {
		res, err := prove(ctx, inputs[:mid], p, encode)
		done <- branchResult{left: true, res: res, err: err}
	}()
	go func() {
		res, err := prove(ctx, inputs[mid:], p, encode)
		done <- branchResult{res: res, err: err}
	}()

	var left, right *ProofResult
	for range 2 {
		b := <-done
		if b.err != nil {
			return nil, b.err
		}
		if b.left {
			left = b.res
		} else {
			right = b.res
		}
	}

	merged, err := left.Input.Combine(right.Input)
	if err != nil {
		return nil, err
	}
	proofs := make([]string, 0, len(left.Proofs)+len(right.Proofs))
	proofs = append(proofs, left.Proofs...)
	proofs = append(proofs, right.Proofs...)
	return &ProofResult{Proofs: proofs, Input: merged}, nil
}

func proveLeaf(ctx context.Context, input types.ProgramInput, p Prover, encode InputEncoder) (*ProofResult, error) {
	serialized, err := encode(input)
	if err != nil {
		return nil, fmt.Errorf("encode block %d: %w", input.BlockNumber, err)
	}
	log.Trace(log.ProverMonitoring, "Proving block", "block", input.BlockNumber, "input", serialized)

	start := time.Now()
	proof, err := p.Prove(ctx, serialized)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w: %w", input.BlockNumber, sayaerrors.ErrPProverFailed, err)
	}
	if proof == "" {
		return nil, fmt.Errorf("block %d: %w", input.BlockNumber, sayaerrors.ErrPEmptyProof)
	}
	log.Info(log.ProverMonitoring, "Block proven", "block", input.BlockNumber, "elapsed", time.Since(start))
	return &ProofResult{Proofs: []string{proof}, Input: input}, nil
}
