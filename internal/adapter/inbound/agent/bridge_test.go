package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/neoke/pocket/internal/adapter/outbound/node"
	"github.com/neoke/pocket/internal/domain/credential"
	"github.com/neoke/pocket/internal/service"
)

type fakeWallet struct {
	status   service.Status
	creds    []credential.Credential
	received *credential.Credential
	present  func(uri string, selections []int, skipX509, approved bool) (string, error)
}

func (f *fakeWallet) Status(context.Context) service.Status { return f.status }
func (f *fakeWallet) Credentials(context.Context) ([]credential.Credential, error) {
	return f.creds, nil
}
func (f *fakeWallet) Refresh(context.Context) ([]credential.Credential, bool, error) {
	return f.creds, true, nil
}
func (f *fakeWallet) ReceiveOffer(_ context.Context, uri, keyID string) (*credential.Credential, error) {
	return f.received, nil
}
func (f *fakeWallet) Preview(context.Context, string) (*node.PresentationPreview, error) {
	return &node.PresentationPreview{Verifier: "verifier.example"}, nil
}
func (f *fakeWallet) Present(_ context.Context, uri string, selections []int, skipX509, approved bool) (string, error) {
	if f.present != nil {
		return f.present(uri, selections, skipX509, approved)
	}
	return "", nil
}

// runBridge feeds the given request lines through a bridge and returns one
// decoded response per line written.
func runBridge(t *testing.T, w Wallet, lines ...string) []map[string]any {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBridge(w, logger)

	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	if err := b.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var resps []map[string]any
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("response is not JSON: %q", scanner.Text())
		}
		resps = append(resps, resp)
	}
	return resps
}

func TestStatusRequest(t *testing.T) {
	w := &fakeWallet{status: service.Status{State: "authenticated", CredentialCount: 3}}
	resps := runBridge(t, w, `{"jsonrpc":"2.0","id":1,"method":"wallet/status"}`)

	if len(resps) != 1 {
		t.Fatalf("got %d responses, want 1", len(resps))
	}
	result, ok := resps[0]["result"].(map[string]any)
	if !ok {
		t.Fatalf("response = %v, want result object", resps[0])
	}
	if result["state"] != "authenticated" {
		t.Errorf("state = %v", result["state"])
	}
	if result["credentialCount"] != float64(3) {
		t.Errorf("credentialCount = %v", result["credentialCount"])
	}
	if resps[0]["id"] != float64(1) {
		t.Errorf("id = %v, want 1", resps[0]["id"])
	}
}

func TestCredentialsListWithRefresh(t *testing.T) {
	w := &fakeWallet{creds: []credential.Credential{{ID: "cred-1"}}}
	resps := runBridge(t, w, `{"jsonrpc":"2.0","id":"a","method":"credentials/list","params":{"refresh":true}}`)

	result := resps[0]["result"].(map[string]any)
	if result["degraded"] != true {
		t.Errorf("degraded = %v, want true", result["degraded"])
	}
	creds := result["credentials"].([]any)
	if len(creds) != 1 {
		t.Errorf("credentials = %v", creds)
	}
	if resps[0]["id"] != "a" {
		t.Errorf("string id = %v, want a", resps[0]["id"])
	}
}

func TestConsentRequiredCode(t *testing.T) {
	w := &fakeWallet{present: func(string, []int, bool, bool) (string, error) {
		return "", service.ErrConsentRequired
	}}
	resps := runBridge(t, w,
		`{"jsonrpc":"2.0","id":5,"method":"presentations/respond","params":{"uri":"openid4vp://x"}}`)

	errObj, ok := resps[0]["error"].(map[string]any)
	if !ok {
		t.Fatalf("response = %v, want error object", resps[0])
	}
	if errObj["code"] != float64(codeConsentNeeded) {
		t.Errorf("code = %v, want %d", errObj["code"], codeConsentNeeded)
	}
}

func TestUnknownMethodAndParseError(t *testing.T) {
	w := &fakeWallet{}
	resps := runBridge(t, w,
		`{"jsonrpc":"2.0","id":1,"method":"wallet/selfdestruct"}`,
		`{this is not json`)

	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
	if code := resps[0]["error"].(map[string]any)["code"]; code != float64(codeMethodNotFound) {
		t.Errorf("unknown method code = %v, want %d", code, codeMethodNotFound)
	}
	if code := resps[1]["error"].(map[string]any)["code"]; code != float64(codeParseError) {
		t.Errorf("parse error code = %v, want %d", code, codeParseError)
	}
}

func TestMissingURIIsInvalidParams(t *testing.T) {
	resps := runBridge(t, &fakeWallet{},
		`{"jsonrpc":"2.0","id":1,"method":"offers/receive","params":{}}`)

	if code := resps[0]["error"].(map[string]any)["code"]; code != float64(codeInvalidParams) {
		t.Errorf("code = %v, want %d", code, codeInvalidParams)
	}
}

func TestNotificationGetsNoResponse(t *testing.T) {
	resps := runBridge(t, &fakeWallet{},
		`{"jsonrpc":"2.0","method":"wallet/status"}`,
		`{"jsonrpc":"2.0","id":2,"method":"wallet/status"}`)

	if len(resps) != 1 {
		t.Fatalf("got %d responses, want 1 (notification must be silent)", len(resps))
	}
	if resps[0]["id"] != float64(2) {
		t.Errorf("id = %v, want 2", resps[0]["id"])
	}
}
