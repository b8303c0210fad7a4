// Package compute is the stateless request/response wrapper around the
// remote actuarial computation service.
//
// The service is a collaborator, not part of this repository; this package
// only implements the contract the orchestrator depends on: defaults,
// lookup tables, calculate, suggestions and apply-suggestion.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/previsim/previsim/services/simulation/datatypes"
)

var tracer = otel.Tracer("previsim.compute")

// ErrorClass partitions remote failures the way the UI reacts to them.
type ErrorClass string

const (
	// ClassTransport covers connection failures and timeouts.
	ClassTransport ErrorClass = "transport"

	// ClassNotFound covers 404s (unknown table code, unknown suggestion).
	ClassNotFound ErrorClass = "not_found"

	// ClassValidation covers the remaining 4xx: the service rejected the
	// snapshot as semantically invalid.
	ClassValidation ErrorClass = "validation"

	// ClassServer covers 5xx.
	ClassServer ErrorClass = "server"
)

// APIError is a non-2xx response from the computation service.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("compute service %s error (status %d): %s", e.Class, e.StatusCode, e.Message)
}

// Classify returns the error class for any error returned by this package.
// Transport-level failures (including timeouts) classify as ClassTransport.
func Classify(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ClassTransport
}

// DefaultRequestTimeout bounds every call to the computation service.
// The original client had none and could hang the UI indefinitely on a
// stuck backend.
const DefaultRequestTimeout = 30 * time.Second

// Config configures the Client.
type Config struct {
	// BaseURL is the service root, e.g. "http://localhost:8600".
	BaseURL string

	// RequestTimeout bounds each call. Default: DefaultRequestTimeout.
	RequestTimeout time.Duration

	// HTTPClient overrides the transport, mainly for tests. The timeout
	// above is applied regardless.
	HTTPClient *http.Client
}

// Client is the stateless computation service client.
//
// Safe for concurrent use; it holds no per-request state.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// NewClient creates a Client from config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("compute: BaseURL not set")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:    timeout,
	}, nil
}

// Defaults fetches the full default parameter snapshot.
func (c *Client) Defaults(ctx context.Context) (*datatypes.ParameterSnapshot, error) {
	var snap datatypes.ParameterSnapshot
	if err := c.get(ctx, "/api/v1/defaults", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// LookupTables fetches the selectable actuarial reference tables.
func (c *Client) LookupTables(ctx context.Context) ([]datatypes.LookupTable, error) {
	var tables []datatypes.LookupTable
	if err := c.get(ctx, "/api/v1/lookup-tables", &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// Calculate runs a synchronous calculation for the snapshot.
//
// Deployments that answer over the push channel instead return 202 with an
// empty body; in that case both return values are nil and the result will
// arrive as a calculation_completed event.
func (c *Client) Calculate(ctx context.Context, snapshot datatypes.ParameterSnapshot) (*datatypes.ResultSnapshot, error) {
	ctx, span := tracer.Start(ctx, "Client.Calculate")
	defer span.End()
	span.SetAttributes(attribute.String("snapshot.fingerprint", snapshot.Fingerprint()))

	var res datatypes.ResultSnapshot
	status, err := c.post(ctx, "/api/v1/calculate", snapshot, &res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "calculate failed")
		return nil, err
	}
	if status == http.StatusAccepted {
		return nil, nil
	}
	return &res, nil
}

// SuggestionsRequest is the body of POST /api/v1/suggestions.
type SuggestionsRequest struct {
	Snapshot       datatypes.ParameterSnapshot `json:"snapshot"`
	MaxSuggestions int                         `json:"max_suggestions"`
}

// SuggestionsResponse is the ordered suggestion list plus a free-form
// context map the presentation layer may display.
type SuggestionsResponse struct {
	Suggestions []datatypes.Suggestion `json:"suggestions"`
	Context     map[string]string      `json:"context,omitempty"`
}

// Suggestions asks the service for up to maxSuggestions recommended changes.
func (c *Client) Suggestions(ctx context.Context, snapshot datatypes.ParameterSnapshot, maxSuggestions int) (*SuggestionsResponse, error) {
	ctx, span := tracer.Start(ctx, "Client.Suggestions")
	defer span.End()

	var resp SuggestionsResponse
	if _, err := c.post(ctx, "/api/v1/suggestions", SuggestionsRequest{
		Snapshot:       snapshot,
		MaxSuggestions: maxSuggestions,
	}, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "suggestions failed")
		return nil, err
	}
	return &resp, nil
}

// ApplySuggestionRequest is the body of POST /api/v1/apply-suggestion.
// The server only does bookkeeping with it; the orchestrator computes its
// own field updates from the same action data.
type ApplySuggestionRequest struct {
	Snapshot     datatypes.ParameterSnapshot `json:"snapshot"`
	Action       datatypes.SuggestionAction  `json:"action"`
	ActionValue  *float64                    `json:"action_value,omitempty"`
	ActionValues map[string]float64          `json:"action_values,omitempty"`
}

// ApplySuggestion reports a suggestion application for server-side
// bookkeeping.
func (c *Client) ApplySuggestion(ctx context.Context, req ApplySuggestionRequest) error {
	ctx, span := tracer.Start(ctx, "Client.ApplySuggestion")
	defer span.End()
	span.SetAttributes(attribute.String("suggestion.action", string(req.Action)))

	if _, err := c.post(ctx, "/api/v1/apply-suggestion", req, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply-suggestion failed")
		return err
	}
	return nil
}

// get issues a GET and decodes a 2xx JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// post issues a POST with a JSON body and decodes a 2xx JSON response into
// out when out is non-nil and a body is present. Returns the status code.
func (c *Client) post(ctx context.Context, path string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return resp.StatusCode, err
	}
	if out == nil || resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response from %s: %w", path, err)
	}
	return resp.StatusCode, nil
}

// checkStatus maps non-2xx responses to APIError values.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	message := readErrorMessage(resp.Body)
	class := ClassServer
	switch {
	case resp.StatusCode == http.StatusNotFound:
		class = ClassNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		class = ClassValidation
	}
	slog.Warn("compute service returned error",
		"status", resp.StatusCode, "class", string(class), "message", message)
	return &APIError{StatusCode: resp.StatusCode, Class: class, Message: message}
}

// readErrorMessage pulls a message out of an error body, tolerating both
// {"error": "..."} and plain text.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no error detail"
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
