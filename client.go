package circuitflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client talks to the pipeline backend. The zero value is not usable; create
// one with NewClient. A client runs at most one pipeline at a time: starting
// a new run supersedes the previous one by cancelling its stream and waiting
// for its loop to drain before any state is reset.
type Client struct {
	// HTTPClient may be replaced before the first run, e.g. to set
	// transport-level timeouts. Defaults to a client with no overall
	// timeout, since a pipeline run is a long-lived stream.
	HTTPClient *http.Client
	// Stages is the pipeline definition used for new runs. Defaults to
	// DefaultStages.
	Stages []Stage
	Logger *slog.Logger

	baseURL string

	mu      sync.Mutex
	current *Run
}

// CreateRequest is the payload of the pipeline-creation endpoint.
type CreateRequest struct {
	UserInput           string `json:"userInput"`
	ConversationContext string `json:"conversationContext,omitempty"`
	SelectedModel       string `json:"selectedModel,omitempty"`
	// RetryFromStage asks the backend to resume from a given stage id
	// instead of the beginning.
	RetryFromStage string `json:"retryFromStage,omitempty"`
}

// NewClient returns a client for the backend at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		HTTPClient: &http.Client{},
		Stages:     DefaultStages(),
		Logger:     slog.Default(),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// CreateRun starts a pipeline run and begins consuming its event stream. The
// returned run is live: read snapshots from Run.Next and the terminal status
// from Run.Wait. A previous run still in flight is cancelled and drained
// first, so there is never more than one writer per client.
func (c *Client) CreateRun(ctx context.Context, req CreateRequest) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Cancel()
		<-c.current.done
		c.current = nil
	}

	id := uuid.New().String()
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding create request: %w", err)
	}

	run := newRun(ctx, id, c.Stages, c.Logger)
	httpReq, err := http.NewRequestWithContext(run.ctx, http.MethodPost,
		c.baseURL+"/create/"+id, bytes.NewReader(body))
	if err != nil {
		run.cancel()
		return nil, fmt.Errorf("building create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		run.cancel()
		return nil, fmt.Errorf("creating pipeline run: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		run.cancel()
		return nil, fmt.Errorf("creating pipeline run: unexpected status %s", resp.Status)
	}

	c.Logger.Debug("pipeline run created", "run", id, "model", req.SelectedModel)
	go run.consume(resp.Body)

	c.current = run
	return run, nil
}

// ExecuteArtifact sends a finished design artifact to the execution endpoint.
// The endpoint only reports success or failure; no stream is involved.
func (c *Client) ExecuteArtifact(ctx context.Context, artifact string) error {
	body, err := json.Marshal(map[string]string{"artifact": artifact})
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient.Timeout == 0 {
		cp := *httpClient
		cp.Timeout = 30 * time.Second
		httpClient = &cp
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing artifact: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("executing artifact: unexpected status %s", resp.Status)
	}
	return nil
}
