package prover

import (
	"github.com/neotheprogramist/dojo/types"
)

// ExtractMessages builds the two message segments of a block. Messages to Starknet are
// the L2 to L1 messages of successful executions in order. Messages to the appchain are
// the L1 handler transactions: the first calldata element is the L1 sender and the
// rest is the payload.
func ExtractMessages(executions []types.TransactionExecution, l1Handlers []types.Transaction) ([]types.MessageToStarknet, []types.MessageToAppchain) {
	var toStarknet []types.MessageToStarknet
	for _, exec := range executions {
		if exec.Reverted {
			continue
		}
		toStarknet = append(toStarknet, exec.MessagesSent...)
	}

	var toAppchain []types.MessageToAppchain
	for _, tx := range l1Handlers {
		if len(tx.Calldata) == 0 {
			continue
		}
		toAppchain = append(toAppchain, types.MessageToAppchain{
			FromAddress: tx.Calldata[0],
			ToAddress:   tx.ContractAddress,
			Nonce:       tx.Nonce,
			Selector:    tx.EntryPointSelector,
			Payload:     append([]types.Felt{}, tx.Calldata[1:]...),
		})
	}
	return toStarknet, toAppchain
}
