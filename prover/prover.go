// Package prover turns program inputs into proofs. The proving backend is opaque:
// it maps a serialized program input to a proof string.
package prover

import (
	"context"
)

// Prover is a proving backend. Proving must be a pure function of input so that a
// failed run can be retried from scratch.
type Prover interface {
	Prove(ctx context.Context, input string) (string, error)
}

// FuncProver adapts a function to the Prover interface.
type FuncProver func(ctx context.Context, input string) (string, error)

func (f FuncProver) Prove(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}
