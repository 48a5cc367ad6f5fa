package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/neoke/pocket/internal/domain/credential"
)

func TestValidOutput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"table", outputTable, false},
		{"JSON", outputJSON, false},
		{" yaml ", outputYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := validOutput(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("validOutput(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("validOutput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderCredentialTable(t *testing.T) {
	var buf bytes.Buffer
	renderCredentialTable(&buf, []credential.Credential{
		{
			ID:      "cred-1",
			Issuer:  "did:web:issuer.example",
			Status:  credential.StatusActive,
			Display: &credential.DisplayMetadata{Label: "Employee Credential"},
		},
		{ID: "cred-2", Issuer: "I2"},
	})

	out := buf.String()
	for _, want := range []string{"cred-1", "Employee Credential", "active", "cred-2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderCredentialTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderCredentialTable(&buf, nil)
	if !strings.Contains(buf.String(), "no credentials") {
		t.Errorf("empty table output = %q", buf.String())
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	creds := []credential.Credential{{ID: "cred-1", Type: []string{"VerifiableCredential"}}}
	if err := renderCredentials(&buf, outputJSON, creds); err != nil {
		t.Fatalf("renderCredentials(json) error = %v", err)
	}
	var back []credential.Credential
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(back) != 1 || back[0].ID != "cred-1" {
		t.Errorf("round trip = %+v", back)
	}
}
