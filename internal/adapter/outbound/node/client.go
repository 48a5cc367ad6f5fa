package node

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neoke/pocket/internal/domain/credential"
)

// defaultNodeDomain is appended to bare node identifiers.
const defaultNodeDomain = ".id-node.neoke.com"

// maxResponseBodySize caps response bodies to prevent OOM from a
// misbehaving node.
const maxResponseBodySize = 10 * 1024 * 1024 // 10MB

// API paths on the node.
const (
	pathAuthn             = "/:/auth/authn"
	pathSIOPRequest       = "/:/auth/siop/request"
	pathSIOPPreview       = "/:/auth/siop/respond/preview"
	pathSIOPRespond       = "/:/auth/siop/respond"
	pathReceive           = "/:/oid4vci/receive"
	pathStoredCredentials = "/:/credentials/stored"
	pathKeys              = "/:/keys"
)

// ResolveBaseURL expands a node identifier to a base URL. A bare
// identifier becomes https://<identifier>.id-node.neoke.com; anything
// containing a dot or a scheme is used as-is, with https defaulted.
func ResolveBaseURL(identifier string) string {
	id := strings.TrimSpace(identifier)
	if strings.Contains(id, "://") {
		return strings.TrimRight(id, "/")
	}
	if strings.Contains(id, ".") {
		return "https://" + strings.TrimRight(id, "/")
	}
	return "https://" + id + defaultNodeDomain
}

// Client talks to one id-node. Create one per active node; switching nodes
// means creating a new Client, never mutating shared state.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	metrics    Metrics
	tracer     trace.Tracer
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client, for tests or custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. Default: 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the request metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the node at baseURL. tokens supplies the
// bearer token for authenticated calls; it may be nil for a client only
// used to authenticate.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
		tracer: otel.Tracer("pocket/node"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the node base URL this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authenticate exchanges an API key for a bearer token and its absolute
// expiry. When the node omits expiresAt, the expiry is recovered from the
// token's JWT exp claim; a token with no recoverable expiry is rejected.
func (c *Client) Authenticate(ctx context.Context, apiKey string) (string, time.Time, error) {
	var resp authnResponse
	err := c.do(ctx, "authn", http.MethodPost, pathAuthn, "ApiKey "+apiKey, nil, &resp)
	if err != nil {
		return "", time.Time{}, err
	}
	if resp.Token == "" {
		return "", time.Time{}, &ShapeError{Endpoint: pathAuthn}
	}

	if exp, ok := parseExpiresAt(resp.ExpiresAt); ok {
		return resp.Token, exp, nil
	}
	if exp, ok := tokenExpiryFromJWT(resp.Token); ok {
		c.logger.Debug("authn response omitted expiresAt, using JWT exp claim", "expires_at", exp)
		return resp.Token, exp, nil
	}
	return "", time.Time{}, fmt.Errorf("authentication response carries no token expiry")
}

// CreatePresentationRequest asks the node to mint a presentation-preview
// request from a DCQL query, returning the invocation URL to hand to a
// verifier or render as a QR code.
func (c *Client) CreatePresentationRequest(ctx context.Context, dcql json.RawMessage) (string, error) {
	var resp createRequestResponse
	if err := c.doAuthed(ctx, "siop_request", http.MethodPost, pathSIOPRequest, json.RawMessage(dcql), &resp); err != nil {
		return "", err
	}
	if resp.InvocationURL == "" {
		return "", &ShapeError{Endpoint: pathSIOPRequest}
	}
	return resp.InvocationURL, nil
}

// PreviewPresentation resolves a presentation-request URI into the verifier
// identity and the candidate credentials for each query.
func (c *Client) PreviewPresentation(ctx context.Context, requestURI string) (*PresentationPreview, error) {
	var resp PresentationPreview
	body := map[string]string{"request": requestURI}
	if err := c.doAuthed(ctx, "siop_preview", http.MethodPost, pathSIOPPreview, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitPresentation answers a presentation request. The returned redirect
// URI is empty when the verifier defines none.
func (c *Client) SubmitPresentation(ctx context.Context, req SubmitRequest) (string, error) {
	var resp submitResponse
	if err := c.doAuthed(ctx, "siop_respond", http.MethodPost, pathSIOPRespond, req, &resp); err != nil {
		return "", err
	}
	return resp.RedirectURI, nil
}

// ReceiveCredential accepts a credential offer. The response shape varies
// by node version, so the credential is probed out of the known nestings.
func (c *Client) ReceiveCredential(ctx context.Context, offerURI, keyID string) (*credential.Credential, error) {
	body := map[string]string{"offer_uri": offerURI}
	if keyID != "" {
		body["keyId"] = keyID
	}
	var raw json.RawMessage
	if err := c.doAuthed(ctx, "oid4vci_receive", http.MethodPost, pathReceive, body, &raw); err != nil {
		return nil, err
	}
	cred, err := decodeReceivedCredential(raw)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// ListStoredCredentials fetches the node's full credential listing.
// Returns ErrNotFound unchanged on nodes that do not implement the
// endpoint; callers fall back to key-based discovery.
func (c *Client) ListStoredCredentials(ctx context.Context) ([]credential.Credential, error) {
	var resp struct {
		Credentials []credential.Credential `json:"credentials"`
	}
	if err := c.doAuthed(ctx, "credentials_stored", http.MethodGet, pathStoredCredentials, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Credentials, nil
}

// DeleteStoredCredential removes a credential on the node. Callers treat
// failures as best-effort.
func (c *Client) DeleteStoredCredential(ctx context.Context, id string) error {
	return c.doAuthed(ctx, "credentials_delete", http.MethodDelete, pathStoredCredentials+"/"+id, nil, nil)
}

// ListKeys fetches the wallet's signing keys. Nodes answer with either a
// bare array or an object wrapping it.
func (c *Client) ListKeys(ctx context.Context) ([]Key, error) {
	var raw json.RawMessage
	if err := c.doAuthed(ctx, "keys", http.MethodGet, pathKeys, nil, &raw); err != nil {
		return nil, err
	}

	var keys []Key
	if err := json.Unmarshal(raw, &keys); err == nil {
		return keys, nil
	}
	var wrapped struct {
		Keys []Key `json:"keys"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Keys != nil {
		return wrapped.Keys, nil
	}
	return nil, &ShapeError{Endpoint: pathKeys}
}

// doAuthed performs a bearer-authenticated request. It fails fast with
// ErrUnauthorized when no usable token is held.
func (c *Client) doAuthed(ctx context.Context, name, method, path string, body, result any) error {
	if c.tokens == nil {
		return fmt.Errorf("%w: no token source configured", ErrUnauthorized)
	}
	token, ok := c.tokens.BearerToken()
	if !ok {
		return fmt.Errorf("%w: no active session", ErrUnauthorized)
	}
	return c.do(ctx, name, method, path, "Bearer "+token, body, result)
}

// do performs an HTTP request and maps the response onto the client's
// error taxonomy: 401 is always ErrUnauthorized, 404 is ErrNotFound, 422
// is a ValidationError with server detail, transport failures are
// ConnectionError.
func (c *Client) do(ctx context.Context, name, method, path, authz string, body, result any) (err error) {
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "node."+name,
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("url.path", path),
			attribute.String("request.id", requestID),
		))
	start := time.Now()
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.metrics != nil {
			c.metrics.ObserveRequest(name, outcomeLabel(err), time.Since(start).Seconds())
		}
	}()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, merr := json.Marshal(body)
		if merr != nil {
			return fmt.Errorf("marshal request body: %w", merr)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectionError{Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return &ConnectionError{Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w (HTTP 401)", ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s (HTTP 404)", ErrNotFound, path)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Detail: extractDetail(respBody)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			c.logger.Debug("undecodable response", "path", path, "error", err)
			return &ShapeError{Endpoint: path}
		}
	}
	return nil
}

// outcomeLabel maps an error onto the metric outcome label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		var connErr *ConnectionError
		var valErr *ValidationError
		switch {
		case errors.As(err, &connErr):
			return "connection"
		case errors.As(err, &valErr):
			return "invalid"
		default:
			return "error"
		}
	}
}

// extractDetail pulls a human-readable message out of a 422 body.
func extractDetail(body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.Detail, payload.Error, payload.Message} {
			if s != "" {
				return s
			}
		}
	}
	return truncate(string(body), 256)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
