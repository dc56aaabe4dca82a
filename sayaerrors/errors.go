package sayaerrors

import (
	"errors"
	"strings"
)

// Program input (I) Errors
var (
	ErrICombineOrder    = errors.New("I1|CombineOrder: Program inputs combined out of block order.")
	ErrINoProgramInputs = errors.New("I2|NoProgramInputs: Recursive proving requested over an empty input list.")
	ErrIMalformedFelt   = errors.New("I3|MalformedFelt: Value is not a valid field element.")
)

// Prover (P) Errors
var (
	ErrPProverFailed   = errors.New("P1|ProverFailed: Prover backend returned an error.")
	ErrPMalformedProof = errors.New("P2|MalformedProof: Proof could not be parsed into field elements.")
	ErrPEmptyProof     = errors.New("P3|EmptyProof: Prover returned an empty proof.")
)

// Verifier (V) Errors
var (
	ErrVTransactionRejected      = errors.New("V1|TransactionRejected: Transaction was rejected by the sequencer.")
	ErrVTransactionReverted      = errors.New("V2|TransactionReverted: Transaction was accepted but its execution reverted.")
	ErrVTransactionTimeout       = errors.New("V3|TransactionTimeout: Transaction did not reach a terminal status in time.")
	ErrVFinalizeRetriesExhausted = errors.New("V4|FinalizeRetriesExhausted: Finalize call could not be sent within the retry bound.")
	ErrVFragmentSendFailed       = errors.New("V5|FragmentSendFailed: publish_fragment transaction could not be sent.")
	ErrVInvalidChunkSize         = errors.New("V6|InvalidChunkSize: Fragment chunk size must be positive.")
)

// Chain (C) Errors
var (
	ErrCBlockNotFound     = errors.New("C1|BlockNotFound: Block is not known to the provider.")
	ErrCProviderFailed    = errors.New("C2|ProviderFailed: Chain provider request failed.")
	ErrCNoSigner          = errors.New("C3|NoSigner: Account has no signer to authorize transactions.")
	ErrCInvalidPrivateKey = errors.New("C4|InvalidPrivateKey: Private key is not a valid Stark curve scalar.")
)

// Configuration (F) Errors
var (
	ErrFMissingRPCURL       = errors.New("F1|MissingRPCURL: rpc_url must be set.")
	ErrFMissingRegistry     = errors.New("F2|MissingRegistry: fact_registry_address must be set.")
	ErrFInvalidPollInterval = errors.New("F3|InvalidPollInterval: poll_interval must be positive.")
	ErrFInvalidChainID      = errors.New("F4|InvalidChainID: chain_id must be a short string of at most 31 characters.")
	ErrFInvalidInputFormat  = errors.New("F5|InvalidInputFormat: prover_input_format must be json or differ.")
)

var known = []error{
	ErrICombineOrder, ErrINoProgramInputs, ErrIMalformedFelt,
	ErrPProverFailed, ErrPMalformedProof, ErrPEmptyProof,
	ErrVTransactionRejected, ErrVTransactionReverted, ErrVTransactionTimeout,
	ErrVFinalizeRetriesExhausted, ErrVFragmentSendFailed, ErrVInvalidChunkSize,
	ErrCBlockNotFound, ErrCProviderFailed, ErrCNoSigner, ErrCInvalidPrivateKey,
	ErrFMissingRPCURL, ErrFMissingRegistry, ErrFInvalidPollInterval, ErrFInvalidChainID, ErrFInvalidInputFormat,
}

// Classify returns the sentinel err wraps, or nil when it wraps none of them.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsTransient reports whether err belongs to the retried class of failures.
func IsTransient(err error) bool {
	return errors.Is(err, ErrCProviderFailed)
}

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	if k := Classify(err); k != nil {
		err = k
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if k := Classify(err); k != nil {
		err = k
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}
