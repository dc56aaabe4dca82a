package verifier

import (
	"context"
	"fmt"
	"time"

	log "github.com/neotheprogramist/dojo/log"
	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/types"
)

const (
	DefaultPollInterval = time.Second
	DefaultWaitTimeout  = 60 * time.Second
)

// StatusReader reports the status of a submitted transaction. chain.Account satisfies it.
type StatusReader interface {
	TransactionStatus(ctx context.Context, txHash types.Felt) (types.TransactionStatus, error)
}

// Waiter polls a transaction until it reaches a terminal status.
type Waiter struct {
	Client       StatusReader
	PollInterval time.Duration
	Timeout      time.Duration
}

func NewWaiter(client StatusReader) *Waiter {
	return &Waiter{Client: client, PollInterval: DefaultPollInterval, Timeout: DefaultWaitTimeout}
}

// WaitForSentTransaction returns nil once txHash is accepted with a successful execution.
// Status query errors are retried until the deadline, which runs from the first poll.
func (w *Waiter) WaitForSentTransaction(ctx context.Context, txHash types.Felt) error {
	start := time.Now()
	for {
		status, err := w.Client.TransactionStatus(ctx, txHash)
		if err != nil {
			log.Debug(log.VerifierMonitoring, "Transaction status query failed", "tx", txHash, "err", err)
		} else {
			switch {
			case status.Finality == types.FinalityRejected:
				return fmt.Errorf("%w: %s", sayaerrors.ErrVTransactionRejected, txHash)
			case status.IsAccepted() && status.Execution == types.ExecutionReverted:
				return fmt.Errorf("%w: %s", sayaerrors.ErrVTransactionReverted, txHash)
			case status.IsAccepted():
				log.Trace(log.VerifierMonitoring, "Transaction accepted", "tx", txHash, "status", status, "elapsed", time.Since(start))
				return nil
			}
		}

		if elapsed := time.Since(start); elapsed >= w.Timeout {
			return fmt.Errorf("%w: %s not accepted after %s", sayaerrors.ErrVTransactionTimeout, txHash, elapsed.Round(time.Millisecond))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.PollInterval):
		}
	}
}
