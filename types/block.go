package types

import (
	"encoding/json"
	"fmt"
)

const TxTypeL1Handler = "L1_HANDLER"

// Transaction is the subset of a sequencer transaction the pipeline reads.
type Transaction struct {
	Hash               Felt   `json:"transaction_hash"`
	Type               string `json:"type"`
	ContractAddress    Felt   `json:"contract_address"`
	EntryPointSelector Felt   `json:"entry_point_selector"`
	Calldata           []Felt `json:"calldata"`
	Nonce              Felt   `json:"nonce"`
}

func (tx Transaction) IsL1Handler() bool {
	return tx.Type == TxTypeL1Handler
}

// Block is a sealed sequencer block with its transactions.
type Block struct {
	Number       uint64        `json:"block_number"`
	Hash         Felt          `json:"block_hash"`
	ParentHash   Felt          `json:"parent_hash"`
	StateRoot    Felt          `json:"new_root"`
	Timestamp    uint64        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// L1Handlers returns the block's L1 handler transactions in block order.
func (b *Block) L1Handlers() []Transaction {
	var out []Transaction
	for _, tx := range b.Transactions {
		if tx.IsL1Handler() {
			out = append(out, tx)
		}
	}
	return out
}

// TransactionExecution is the execution trace summary of one transaction.
type TransactionExecution struct {
	TransactionHash Felt                `json:"transaction_hash"`
	Reverted        bool                `json:"reverted,omitempty"`
	MessagesSent    []MessageToStarknet `json:"messages_sent"`
}

// Call is a single contract invocation inside an invoke transaction.
type Call struct {
	To       Felt   `json:"contract_address"`
	Selector Felt   `json:"entry_point_selector"`
	Calldata []Felt `json:"calldata"`
}

type FinalityStatus int

const (
	FinalityReceived FinalityStatus = iota
	FinalityRejected
	FinalityAcceptedOnL2
	FinalityAcceptedOnL1
)

var finalityNames = map[FinalityStatus]string{
	FinalityReceived:     "RECEIVED",
	FinalityRejected:     "REJECTED",
	FinalityAcceptedOnL2: "ACCEPTED_ON_L2",
	FinalityAcceptedOnL1: "ACCEPTED_ON_L1",
}

func (s FinalityStatus) String() string {
	if n, ok := finalityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

type ExecutionStatus int

const (
	ExecutionSucceeded ExecutionStatus = iota
	ExecutionReverted
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionSucceeded:
		return "SUCCEEDED"
	case ExecutionReverted:
		return "REVERTED"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// TransactionStatus is the observed lifecycle state of a submitted transaction.
// Execution is meaningful only once the transaction is accepted.
type TransactionStatus struct {
	Finality  FinalityStatus
	Execution ExecutionStatus
}

func (s TransactionStatus) IsAccepted() bool {
	return s.Finality == FinalityAcceptedOnL2 || s.Finality == FinalityAcceptedOnL1
}

// IsTerminal reports whether polling can stop.
func (s TransactionStatus) IsTerminal() bool {
	return s.Finality == FinalityRejected || s.IsAccepted()
}

func (s TransactionStatus) String() string {
	if s.IsAccepted() {
		return s.Finality.String() + "/" + s.Execution.String()
	}
	return s.Finality.String()
}

type transactionStatusJSON struct {
	FinalityStatus  string `json:"finality_status"`
	ExecutionStatus string `json:"execution_status,omitempty"`
}

func (s TransactionStatus) MarshalJSON() ([]byte, error) {
	out := transactionStatusJSON{FinalityStatus: s.Finality.String()}
	if s.IsAccepted() {
		out.ExecutionStatus = s.Execution.String()
	}
	return json.Marshal(out)
}

func (s *TransactionStatus) UnmarshalJSON(b []byte) error {
	var in transactionStatusJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	found := false
	for k, n := range finalityNames {
		if n == in.FinalityStatus {
			s.Finality = k
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown finality status %q", in.FinalityStatus)
	}
	switch in.ExecutionStatus {
	case "", "SUCCEEDED":
		s.Execution = ExecutionSucceeded
	case "REVERTED":
		s.Execution = ExecutionReverted
	default:
		return fmt.Errorf("unknown execution status %q", in.ExecutionStatus)
	}
	return nil
}
