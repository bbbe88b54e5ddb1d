// Package cli implements the catalogctl command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emmamdp/rickandmorty/pkg/client"
)

const defaultServer = "http://localhost:27780"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Output  string // "table" | "json" | "yaml"
	Timeout time.Duration
}

// ValidOutputs defines the allowed output formats.
var ValidOutputs = []string{"table", "json", "yaml"}

// NewRootCommand creates the root command for catalogctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "catalogctl",
		Short: "Browse the cached Rick and Morty character catalog",
		Long: `catalogctl talks to a running catalog service.

The list command pages through the server feed, which keeps a local cache in
sync with the public Rick and Morty API. Detail lookups are served from that
cache; search goes to the API directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidOutput(opts.Output) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid output %q: must be one of %v", opts.Output, ValidOutputs))
			}
			return nil
		},
	}

	server := strings.TrimSpace(os.Getenv("CATALOG_SERVER"))
	if server == "" {
		server = defaultServer
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", server, "catalog service URL (env CATALOG_SERVER)")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "table", "output format (table|json|yaml)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewFeedCommand(opts))

	return cmd
}

func (o *RootOptions) client() (*client.Client, error) {
	c, err := client.New(client.Config{BaseURL: o.Server, Timeout: o.Timeout})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --server", err)
	}
	return c, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func isValidOutput(output string) bool {
	for _, o := range ValidOutputs {
		if o == output {
			return true
		}
	}
	return false
}
