package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/icp-resolver/internal/server"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Print the identity keys derived from a phone, domain, name or state",
	Example: `  icp-resolver normalize --phone "1-555-111-2222" --name "Acme Solar, LLC"
  icp-resolver normalize --domain "https://www.acmesolar.com/about" --state texas`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var req server.NormalizeRequest
		req.Phone, _ = cmd.Flags().GetString("phone")
		req.Domain, _ = cmd.Flags().GetString("domain")
		req.Name, _ = cmd.Flags().GetString("name")
		req.State, _ = cmd.Flags().GetString("state")
		formatKeys(os.Stdout, req, server.Keys(req))
		return nil
	},
}

func init() {
	normalizeCmd.Flags().String("phone", "", "raw phone number")
	normalizeCmd.Flags().String("domain", "", "raw domain or website URL")
	normalizeCmd.Flags().String("name", "", "raw business name")
	normalizeCmd.Flags().String("state", "", "state name or code")
	rootCmd.AddCommand(normalizeCmd)
}

// formatKeys prints one line per input that was given.
func formatKeys(out io.Writer, req server.NormalizeRequest, keys server.NormalizeResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tRAW\tKEY")
	if req.Phone != "" {
		key := "(rejected)"
		if keys.PhoneValid {
			key = keys.Phone + "  " + keys.PhoneDisplay
		}
		_, _ = fmt.Fprintf(w, "phone\t%s\t%s\n", req.Phone, key)
	}
	if req.Domain != "" {
		key := "(rejected)"
		if keys.DomainValid {
			key = keys.Domain
		}
		_, _ = fmt.Fprintf(w, "domain\t%s\t%s\n", req.Domain, key)
	}
	if req.Name != "" {
		_, _ = fmt.Fprintf(w, "name\t%s\t%s\n", req.Name, keys.Name)
	}
	if req.State != "" {
		_, _ = fmt.Fprintf(w, "state\t%s\t%s\n", req.State, keys.State)
	}
	_ = w.Flush()
}
