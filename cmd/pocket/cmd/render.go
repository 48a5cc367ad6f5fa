package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/neoke/pocket/internal/domain/credential"
)

// Output formats for structured command output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// render writes v to w in the requested format. Table rendering is
// type-specific; callers with tabular data use renderCredentialTable.
func render(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q (use table, json, or yaml)", format)
	}
}

// renderCredentials writes a credential list in the requested format.
func renderCredentials(w io.Writer, format string, creds []credential.Credential) error {
	if format == outputTable {
		renderCredentialTable(w, creds)
		return nil
	}
	return render(w, format, creds)
}

// renderCredentialTable prints the human-facing credential listing.
func renderCredentialTable(w io.Writer, creds []credential.Credential) {
	if len(creds) == 0 {
		fmt.Fprintln(w, "no credentials")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tISSUER\tSTATUS\tEXPIRES")
	for _, c := range creds {
		label := ""
		if c.Display != nil {
			label = c.Display.Label
		}
		status := string(c.Status)
		if status == "" {
			status = string(credential.StatusActive)
		}
		expires := c.ExpirationDate
		if expires == "" {
			expires = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, label, c.Issuer, status, expires)
	}
	_ = tw.Flush()
}

// validOutput normalizes and checks an output format value.
func validOutput(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case outputTable, outputJSON, outputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json, or yaml)", format)
	}
}

// stdout is the writer commands print results to. Logs go to stderr.
var stdout io.Writer = os.Stdout
