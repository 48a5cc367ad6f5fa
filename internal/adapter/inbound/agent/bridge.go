// Package agent exposes wallet operations over a newline-delimited
// JSON-RPC loop on stdio, so automation and AI agents can drive the wallet
// without screen-scraping the CLI.
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/neoke/pocket/internal/adapter/outbound/node"
	"github.com/neoke/pocket/internal/domain/credential"
	"github.com/neoke/pocket/internal/domain/walleturi"
	"github.com/neoke/pocket/internal/service"
)

// JSON-RPC error codes. The -32000 range carries wallet-specific outcomes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeConsentNeeded  = -32001
	codeUnauthorized   = -32002
)

// Wallet is the slice of the wallet service the bridge exposes.
type Wallet interface {
	Status(ctx context.Context) service.Status
	Credentials(ctx context.Context) ([]credential.Credential, error)
	Refresh(ctx context.Context) ([]credential.Credential, bool, error)
	ReceiveOffer(ctx context.Context, uri, keyID string) (*credential.Credential, error)
	Preview(ctx context.Context, uri string) (*node.PresentationPreview, error)
	Present(ctx context.Context, uri string, selections []int, skipX509, approved bool) (string, error)
}

// Bridge runs the JSON-RPC loop.
type Bridge struct {
	wallet Wallet
	logger *slog.Logger
}

// NewBridge creates a bridge over the given wallet.
func NewBridge(wallet Wallet, logger *slog.Logger) *Bridge {
	return &Bridge{wallet: wallet, logger: logger}
}

// Run reads newline-delimited JSON-RPC requests from in and writes one
// response line per request to out. It returns when in reaches EOF or the
// context is cancelled.
func (b *Bridge) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 256*1024) // 256KB initial
	scanner.Buffer(buf, 1024*1024)   // 1MB max

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := b.handleLine(ctx, line)
		if resp == nil {
			continue // notification, nothing to answer
		}
		if _, err := out.Write(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if _, err := out.Write([]byte("\n")); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return ctx.Err()
}

// handleLine decodes one request line and dispatches it. A nil return means
// no response is owed.
func (b *Bridge) handleLine(ctx context.Context, line []byte) []byte {
	rawID := extractRawID(line)

	msg, err := jsonrpc.DecodeMessage(append([]byte(nil), line...))
	if err != nil {
		b.logger.Debug("undecodable request line", "error", err)
		return errorResponse(rawID, codeParseError, "parse error")
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		b.logger.Debug("ignoring non-request message")
		return nil
	}
	if rawID == nil {
		// Notification: execute but answer nothing.
		b.dispatch(ctx, req)
		return nil
	}

	result, rpcErr := b.dispatch(ctx, req)
	if rpcErr != nil {
		return errorResponse(rawID, rpcErr.code, rpcErr.message)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return errorResponse(rawID, codeInternalError, "encode result")
	}
	resp := &jsonrpc.Response{ID: req.ID, Result: resultJSON}
	data, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		return errorResponse(rawID, codeInternalError, "encode response")
	}
	return data
}

type rpcError struct {
	code    int
	message string
}

// dispatch routes a request to the wallet operation it names.
func (b *Bridge) dispatch(ctx context.Context, req *jsonrpc.Request) (any, *rpcError) {
	b.logger.Debug("agent request", "method", req.Method)

	switch req.Method {
	case "wallet/status":
		return b.wallet.Status(ctx), nil

	case "credentials/list":
		var params struct {
			Refresh bool `json:"refresh"`
		}
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		if params.Refresh {
			creds, degraded, err := b.wallet.Refresh(ctx)
			if err != nil {
				return nil, walletError(err)
			}
			return map[string]any{"credentials": creds, "degraded": degraded}, nil
		}
		creds, err := b.wallet.Credentials(ctx)
		if err != nil {
			return nil, walletError(err)
		}
		return map[string]any{"credentials": creds}, nil

	case "offers/receive":
		var params struct {
			URI   string `json:"uri"`
			KeyID string `json:"keyId"`
		}
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		if params.URI == "" {
			return nil, &rpcError{codeInvalidParams, "uri is required"}
		}
		cred, err := b.wallet.ReceiveOffer(ctx, params.URI, params.KeyID)
		if err != nil {
			return nil, walletError(err)
		}
		return map[string]any{"credential": cred}, nil

	case "presentations/preview":
		var params struct {
			URI string `json:"uri"`
		}
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		if params.URI == "" {
			return nil, &rpcError{codeInvalidParams, "uri is required"}
		}
		preview, err := b.wallet.Preview(ctx, params.URI)
		if err != nil {
			return nil, walletError(err)
		}
		return preview, nil

	case "presentations/respond":
		var params struct {
			URI                     string `json:"uri"`
			Selections              []int  `json:"selections"`
			SkipX509ChainValidation bool   `json:"skipX509ChainValidation"`
			Approved                bool   `json:"approved"`
		}
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		if params.URI == "" {
			return nil, &rpcError{codeInvalidParams, "uri is required"}
		}
		redirect, err := b.wallet.Present(ctx, params.URI,
			params.Selections, params.SkipX509ChainValidation, params.Approved)
		if err != nil {
			return nil, walletError(err)
		}
		return map[string]any{"redirectUri": redirect}, nil

	default:
		return nil, &rpcError{codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)}
	}
}

// walletError maps wallet outcomes onto JSON-RPC error codes.
func walletError(err error) *rpcError {
	var valErr *node.ValidationError
	switch {
	case errors.Is(err, service.ErrConsentRequired):
		return &rpcError{codeConsentNeeded, err.Error()}
	case errors.Is(err, node.ErrUnauthorized):
		return &rpcError{codeUnauthorized, "session expired, log in again"}
	case errors.Is(err, walleturi.ErrUnrecognized), errors.As(err, &valErr):
		return &rpcError{codeInvalidParams, err.Error()}
	default:
		return &rpcError{codeInternalError, err.Error()}
	}
}

func unmarshalParams(params json.RawMessage, v any) *rpcError {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &rpcError{codeInvalidParams, "malformed params"}
	}
	return nil
}

// extractRawID pulls the id field straight out of the raw JSON so the
// original format (number or string) survives into the response.
func extractRawID(line []byte) json.RawMessage {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil
	}
	return raw["id"]
}

// errorResponse builds an error response with the raw request ID.
func errorResponse(id json.RawMessage, code int, message string) []byte {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	b, _ := json.Marshal(resp)
	return b
}
