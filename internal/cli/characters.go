package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emmamdp/rickandmorty/pkg/client"
	"github.com/emmamdp/rickandmorty/pkg/types"
)

func addFilterFlags(cmd *cobra.Command, f *types.Filter) {
	cmd.Flags().StringVar(&f.Name, "name", "", "name substring (case-insensitive)")
	cmd.Flags().StringVar(&f.Status, "status", "", "alive|dead|unknown")
	cmd.Flags().StringVar(&f.Species, "species", "", "species substring (case-insensitive)")
	cmd.Flags().StringVar(&f.Type, "type", "", "type substring (case-insensitive)")
	cmd.Flags().StringVar(&f.Gender, "gender", "", "female|male|genderless|unknown")
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var opts client.ListCharactersOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List characters from the server feed",
		Long: `List characters from the server feed.

Applying a different filter restarts the feed from page 1. Pages are loaded
until offset+limit characters are available or the catalog ends.

Examples:
  catalogctl list --name rick
  catalogctl list --name rick --offset 20 --limit 10
  catalogctl list --status dead -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit < 0 || opts.Offset < 0 {
				return NewExitError(ExitCommandError, "--limit and --offset must not be negative")
			}
			c, err := rootOpts.client()
			if err != nil {
				return err
			}
			res, err := c.ListCharacters(commandContext(cmd), opts)
			if err != nil {
				return apiFailure("listing characters", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).characterList(res)
		},
	}

	addFilterFlags(cmd, &opts.Filter)
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of characters to show")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "position of the first character to show")

	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one cached character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id < 1 {
				return NewExitError(ExitCommandError, "character id must be a positive integer")
			}
			c, err := rootOpts.client()
			if err != nil {
				return err
			}
			res, err := c.GetCharacter(commandContext(cmd), id)
			if err != nil {
				return apiFailure("getting character "+args[0], err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).character(res)
		},
	}
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var opts client.SearchOptions

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the live catalog without caching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Page < 1 {
				return NewExitError(ExitCommandError, "--page must be at least 1")
			}
			c, err := rootOpts.client()
			if err != nil {
				return err
			}
			res, err := c.Search(commandContext(cmd), opts)
			if err != nil {
				return apiFailure("searching characters", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).searchResult(res)
		},
	}

	addFilterFlags(cmd, &opts.Filter)
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")

	return cmd
}
