package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/emmamdp/rickandmorty/pkg/client"
	"github.com/emmamdp/rickandmorty/pkg/types"
)

// NewFeedCommand creates the feed command group.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect and drive the server feed",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show feed state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.client()
			if err != nil {
				return err
			}
			res, err := c.FeedStatus(commandContext(cmd))
			if err != nil {
				return apiFailure("getting feed status", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).feedStatus(res)
		},
	})

	cmd.AddCommand(newFeedLoadCommand(rootOpts, "refresh", "Reload the feed around the current position",
		func(ctx context.Context, c *client.Client) (*types.Resource[types.LoadResult], error) {
			return c.Refresh(ctx)
		}))
	cmd.AddCommand(newFeedLoadCommand(rootOpts, "append", "Load the next page",
		func(ctx context.Context, c *client.Client) (*types.Resource[types.LoadResult], error) {
			return c.Append(ctx)
		}))
	cmd.AddCommand(newFeedLoadCommand(rootOpts, "prepend", "Load the previous page",
		func(ctx context.Context, c *client.Client) (*types.Resource[types.LoadResult], error) {
			return c.Prepend(ctx)
		}))
	cmd.AddCommand(newFeedLoadCommand(rootOpts, "retry", "Retry the failed load",
		func(ctx context.Context, c *client.Client) (*types.Resource[types.LoadResult], error) {
			return c.Retry(ctx)
		}))

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the feed filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.client()
			if err != nil {
				return err
			}
			res, err := c.ClearFilter(commandContext(cmd))
			if err != nil {
				return apiFailure("clearing feed filter", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).feedStatus(res)
		},
	})

	return cmd
}

type loadFunc func(ctx context.Context, c *client.Client) (*types.Resource[types.LoadResult], error)

func newFeedLoadCommand(rootOpts *RootOptions, name, short string, load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.client()
			if err != nil {
				return err
			}
			res, err := load(commandContext(cmd), c)
			if err != nil {
				return apiFailure(name+" failed", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).loadResult(res)
		},
	}
}
