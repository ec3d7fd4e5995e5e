package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/emergensee/emergensee-server/internal/domain"
)

// maxReplyBodySize caps how much of a backend response is read (1MB).
const maxReplyBodySize = 1 << 20

// HTTPBackend implements Backend over HTTP/JSON.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ Backend = (*HTTPBackend)(nil)

// NewHTTPBackend creates an HTTP backend client. The timeout bounds the full
// round trip; an exchange that exceeds it fails with ErrAgentUnavailable
// instead of hanging a dispatch.
func NewHTTPBackend(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// wireReply is the backend's response body.
type wireReply struct {
	Reply      string          `json:"reply"`
	Persona    string          `json:"persona"`
	StageIndex *int            `json:"stage_index,omitempty"`
	FlagDeltas map[string]bool `json:"flag_deltas,omitempty"`
}

// Converse posts one exchange to the backend's /run endpoint.
func (b *HTTPBackend) Converse(ctx context.Context, req Request) (*Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode agent request: %w", err)
	}

	url := b.baseURL + "/run"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: post %s: %v", domain.ErrAgentUnavailable, url, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.Warn("failed to close agent response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", domain.ErrAgentUnavailable, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrAgentUnavailable, err)
	}

	var wire wireReply
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", domain.ErrMalformedAgentResponse, err)
	}
	if wire.Reply == "" {
		return nil, fmt.Errorf("%w: missing reply text", domain.ErrMalformedAgentResponse)
	}

	persona := wire.Persona
	if persona == "" {
		persona = req.Persona
	}

	b.logger.Debug("agent exchange complete",
		"persona", persona,
		"stage", req.Stage,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return &Reply{
		Text:       wire.Reply,
		Persona:    persona,
		StageIndex: wire.StageIndex,
		FlagDeltas: wire.FlagDeltas,
	}, nil
}
