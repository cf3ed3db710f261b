package tapescmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/picochat/cmd/picochat/sqlitepath"
	"github.com/papercomputeco/picochat/pkg/llm"
	"github.com/papercomputeco/picochat/pkg/logger"
	"github.com/papercomputeco/picochat/pkg/merkle"
)

const tapesLongDesc string = `List recorded conversations, or print one of them.

Without arguments, prints one line per recorded conversation head:
its hash, its length, and the latest user message. With a hash (or
unique hash prefix), prints that conversation oldest first.

Recorded transcripts are never loaded back into a chat session.

Examples:
  picochat tapes
  picochat tapes 3fa2c1
  picochat tapes --sqlite /tmp/tapes.sqlite`

const tapesShortDesc string = "Inspect recorded conversations"

type tapesCommander struct {
	sqlitePath string
}

func NewTapesCmd() *cobra.Command {
	cmder := &tapesCommander{}

	cmd := &cobra.Command{
		Use:   "tapes [hash]",
		Short: tapesShortDesc,
		Long:  tapesLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the transcript database")

	return cmd
}

func (c *tapesCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve transcript database: %w", err)
	}

	storer, err := merkle.NewSQLiteStorer(dbPath)
	if err != nil {
		return fmt.Errorf("could not open transcript database %s: %w", dbPath, err)
	}
	defer storer.Close()

	if len(args) == 1 {
		return c.show(ctx, cmd, storer, args[0])
	}
	return c.list(ctx, cmd, storer)
}

func (c *tapesCommander) list(ctx context.Context, cmd *cobra.Command, storer merkle.Storer) error {
	leaves, err := storer.Leaves(ctx)
	if err != nil {
		return fmt.Errorf("could not list conversations: %w", err)
	}

	if len(leaves) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recorded conversations.")
		return nil
	}

	for _, leaf := range leaves {
		msgs, err := merkle.Conversation(ctx, storer, leaf.Hash)
		if err != nil {
			return fmt.Errorf("could not load conversation %s: %w", leaf.Hash, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %3d messages  %s\n",
			leaf.Hash[:12], len(msgs), logger.Truncate(lastUser(msgs), 60))
	}

	return nil
}

func (c *tapesCommander) show(ctx context.Context, cmd *cobra.Command, storer merkle.Storer, prefix string) error {
	hash, err := resolveHash(ctx, storer, prefix)
	if err != nil {
		return err
	}

	msgs, err := merkle.Conversation(ctx, storer, hash)
	if err != nil {
		return fmt.Errorf("could not load conversation %s: %w", hash, err)
	}

	for _, msg := range msgs {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", msg.Role, msg.Content)
	}
	return nil
}

// resolveHash expands a unique hash prefix to a full node hash.
func resolveHash(ctx context.Context, storer merkle.Storer, prefix string) (string, error) {
	nodes, err := storer.List(ctx)
	if err != nil {
		return "", fmt.Errorf("could not list nodes: %w", err)
	}

	var matches []string
	for _, n := range nodes {
		if strings.HasPrefix(n.Hash, prefix) {
			matches = append(matches, n.Hash)
		}
	}

	switch len(matches) {
	case 0:
		return "", merkle.ErrNotFound{Hash: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("hash prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func lastUser(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
