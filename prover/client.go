package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/neotheprogramist/dojo/log"
)

const DefaultHTTPTimeout = 30 * time.Minute

// HTTPProverParams locate a remote prover service.
type HTTPProverParams struct {
	URL       string
	AccessKey string
	Timeout   time.Duration
}

// HTTPProver submits program inputs to a remote prover service over HTTP. The service
// accepts POST <url>/prove with {"program_input": <input>} and answers with the proof.
type HTTPProver struct {
	params HTTPProverParams
	client *http.Client
}

var _ Prover = (*HTTPProver)(nil)

func NewHTTPProver(params HTTPProverParams) *HTTPProver {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPProver{params: params, client: &http.Client{Timeout: timeout}}
}

type proveRequest struct {
	ProgramInput json.RawMessage `json:"program_input"`
}

func (h *HTTPProver) Prove(ctx context.Context, input string) (string, error) {
	raw := json.RawMessage(input)
	if !json.Valid(raw) {
		// non-JSON inputs (differ argument strings) travel as a JSON string
		quoted, err := json.Marshal(input)
		if err != nil {
			return "", err
		}
		raw = quoted
	}
	body, err := json.Marshal(proveRequest{ProgramInput: raw})
	if err != nil {
		return "", fmt.Errorf("marshal prove request: %w", err)
	}

	url := strings.TrimRight(h.params.URL, "/") + "/prove"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.params.AccessKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.params.AccessKey)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	proof, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read prover response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("prover answered %s: %s", resp.Status, bytes.TrimSpace(proof))
	}
	log.Debug(log.ProverMonitoring, "HTTPProver: proof received", "url", url, "bytes", len(proof), "elapsed", time.Since(start))
	return string(proof), nil
}
