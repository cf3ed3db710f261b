package chatcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/picochat/cmd/picochat/sqlitepath"
	"github.com/papercomputeco/picochat/pkg/chat"
	"github.com/papercomputeco/picochat/pkg/completion"
	"github.com/papercomputeco/picochat/pkg/config"
	"github.com/papercomputeco/picochat/pkg/history"
	"github.com/papercomputeco/picochat/pkg/logger"
	"github.com/papercomputeco/picochat/pkg/merkle"
	"github.com/papercomputeco/picochat/pkg/netlink"
)

const chatLongDesc string = `Chat with a remote completion API from the console.

Reads settings from a key=value (or .toml) config file, waits for the
network link, then sends each line you type, together with recent
history, to the completion endpoint and prints the reply.

Required settings: api_key, model_name, ssid.
Optional: password, endpoint, temperature, top_p, max_tokens,
history_limit, system_prompt, timeout, link_wait, link_probe.

Type 'quit' or 'exit' (or press Ctrl-D) to leave.

Examples:
  picochat
  picochat --config ~/picochat.cfg --markdown
  picochat --record --sqlite ~/.picochat/tapes.sqlite`

const chatShortDesc string = "Minimal console chat client for LLM completion APIs"

type chatCommander struct {
	configPath string
	debug      bool
	markdown   bool
	record     bool
	sqlitePath string
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:          "picochat",
		Short:        chatShortDesc,
		Long:         chatLongDesc,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "config.cfg", "Path to the config file")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render replies as Markdown")
	cmd.Flags().BoolVar(&cmder.record, "record", false, "Record answered turns to a SQLite transcript")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the transcript database (implies --record)")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	log := logger.NewLogger(c.debug)
	defer log.Sync()

	out := cmd.OutOrStdout()

	settings, err := config.Read(c.configPath)
	if err != nil {
		log.Warn("could not read config file", zap.String("path", c.configPath), zap.Error(err))
	}

	chatConfig, err := config.LoadChat(settings)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	linkConfig, err := config.LoadLink(settings, chatConfig.Completion.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Fprintf(out, "Connecting to %s...\n", linkConfig.SSID)
	link, err := netlink.NewStation(linkConfig, log).Connect(ctx)
	if err != nil {
		fmt.Fprintf(out, "Failed to connect to %s\n", linkConfig.SSID)
		return err
	}
	fmt.Fprintf(out, "Connected to %s\n", link.SSID)

	client := completion.NewClient(chatConfig.Completion, log)
	conv := history.New(chatConfig.SystemPrompt)
	reader := chat.NewLineReader(cmd.InOrStdin(), out)

	session := chat.New(chat.Config{
		PairLimit: chatConfig.HistoryLimit,
		Model:     chatConfig.Completion.Model,
	}, conv, client, reader, out, log)

	if f, ok := out.(*os.File); c.markdown || (ok && chat.IsTerminal(f)) {
		renderer, err := chat.NewStyledRenderer(c.markdown, 80)
		if err != nil {
			return err
		}
		session.Renderer = renderer
	}

	if c.record || c.sqlitePath != "" {
		dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
		if err != nil {
			return fmt.Errorf("could not resolve transcript database: %w", err)
		}

		storer, err := merkle.NewSQLiteStorer(dbPath)
		if err != nil {
			return fmt.Errorf("could not open transcript database %s: %w", dbPath, err)
		}
		defer storer.Close()

		log.Debug("recording transcript", zap.String("path", dbPath))
		session.Recorder = merkle.NewRecorder(storer, log)
	}

	log.Debug("chat session starting",
		zap.String("model", chatConfig.Completion.Model),
		zap.String("endpoint", chatConfig.Completion.Endpoint),
		zap.Int("history_limit", chatConfig.HistoryLimit),
	)

	return session.Run(ctx)
}
