package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neotheprogramist/dojo/sayaerrors"
)

// MessageToStarknet is an L2 to L1 message emitted while executing a block.
type MessageToStarknet struct {
	FromAddress Felt   `json:"from_address"`
	ToAddress   Felt   `json:"to_address"`
	Payload     []Felt `json:"payload"`
}

// MessageToAppchain is an L1 to L2 message consumed by an L1 handler transaction.
type MessageToAppchain struct {
	FromAddress Felt   `json:"from_address"`
	ToAddress   Felt   `json:"to_address"`
	Nonce       Felt   `json:"nonce"`
	Selector    Felt   `json:"selector"`
	Payload     []Felt `json:"payload"`
}

// ProgramInput is the provable delta of one block, or of a contiguous range once combined.
type ProgramInput struct {
	PrevStateRoot            Felt                `json:"prev_state_root"`
	BlockNumber              uint64              `json:"block_number"`
	BlockHash                Felt                `json:"block_hash"`
	ConfigHash               Felt                `json:"config_hash"`
	MessageToStarknetSegment []MessageToStarknet `json:"message_to_starknet_segment"`
	MessageToAppchainSegment []MessageToAppchain `json:"message_to_appchain_segment"`
	StateUpdates             StateUpdates        `json:"state_updates"`
}

func (p ProgramInput) MarshalJSON() ([]byte, error) {
	type Alias ProgramInput
	a := Alias(p)
	if a.MessageToStarknetSegment == nil {
		a.MessageToStarknetSegment = []MessageToStarknet{}
	}
	if a.MessageToAppchainSegment == nil {
		a.MessageToAppchainSegment = []MessageToAppchain{}
	}
	return json.Marshal(a)
}

func (m MessageToStarknet) MarshalJSON() ([]byte, error) {
	type Alias MessageToStarknet
	a := Alias(m)
	if a.Payload == nil {
		a.Payload = []Felt{}
	}
	return json.Marshal(a)
}

func (m MessageToAppchain) MarshalJSON() ([]byte, error) {
	type Alias MessageToAppchain
	a := Alias(m)
	if a.Payload == nil {
		a.Payload = []Felt{}
	}
	return json.Marshal(a)
}

// Combine merges a later range into p. p must cover earlier blocks than later.
// The result keeps p's pre-state root and takes the block identity of later.
func (p ProgramInput) Combine(later ProgramInput) (ProgramInput, error) {
	if later.BlockNumber <= p.BlockNumber {
		return ProgramInput{}, fmt.Errorf("%w: block %d after block %d", sayaerrors.ErrICombineOrder, later.BlockNumber, p.BlockNumber)
	}
	out := ProgramInput{
		PrevStateRoot: p.PrevStateRoot,
		BlockNumber:   later.BlockNumber,
		BlockHash:     later.BlockHash,
		ConfigHash:    later.ConfigHash,
		StateUpdates:  p.StateUpdates.Merge(later.StateUpdates),
	}
	if n := len(p.MessageToStarknetSegment) + len(later.MessageToStarknetSegment); n > 0 {
		out.MessageToStarknetSegment = make([]MessageToStarknet, 0, n)
		out.MessageToStarknetSegment = append(out.MessageToStarknetSegment, p.MessageToStarknetSegment...)
		out.MessageToStarknetSegment = append(out.MessageToStarknetSegment, later.MessageToStarknetSegment...)
	}
	if n := len(p.MessageToAppchainSegment) + len(later.MessageToAppchainSegment); n > 0 {
		out.MessageToAppchainSegment = make([]MessageToAppchain, 0, n)
		out.MessageToAppchainSegment = append(out.MessageToAppchainSegment, p.MessageToAppchainSegment...)
		out.MessageToAppchainSegment = append(out.MessageToAppchainSegment, later.MessageToAppchainSegment...)
	}
	return out, nil
}

// Serialize returns the JSON document handed to the prover backend. Map keys are emitted
// in sorted order so equal inputs always serialize identically.
func (p ProgramInput) Serialize() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DAAsCalldata flattens the world contract's storage writes into (key, value) pairs,
// ordered by key.
func (p ProgramInput) DAAsCalldata(world Felt) []Felt {
	writes := p.StateUpdates.StorageUpdates[world]
	keys := make([]Felt, 0, len(writes))
	for k := range writes {
		keys = append(keys, k)
	}
	SortFelts(keys)
	out := make([]Felt, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, writes[k])
	}
	return out
}

// PrepareDifferArgs encodes inputs as "[n f0 f1 ...]" for differ-style programs: per input the
// block number, the message counts, and the flattened world state diff.
func PrepareDifferArgs(inputs []ProgramInput, world Felt) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d", len(inputs))
	for _, in := range inputs {
		da := in.DAAsCalldata(world)
		fmt.Fprintf(&sb, " %d %d %d %d", in.BlockNumber, len(in.MessageToStarknetSegment), len(in.MessageToAppchainSegment), len(da))
		for _, f := range da {
			sb.WriteByte(' ')
			sb.WriteString(f.Decimal())
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
