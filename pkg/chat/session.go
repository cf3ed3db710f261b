// Package chat runs the interactive read-submit-print loop of a chat session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/picochat/pkg/completion"
	"github.com/papercomputeco/picochat/pkg/history"
	"github.com/papercomputeco/picochat/pkg/llm"
	"github.com/papercomputeco/picochat/pkg/logger"
)

// State is the loop state.
type State int

const (
	AwaitingInput State = iota
	Exiting
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case Exiting:
		return "exiting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Completer submits a message view and returns the assistant reply.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Recorder receives every answered turn. Failures never affect the chat.
type Recorder interface {
	Record(ctx context.Context, turn llm.ConversationTurn) (string, error)
}

// Config holds the session parameters.
type Config struct {
	// PairLimit is the number of user/assistant pairs submitted per request.
	PairLimit int

	// Model is reported to the Recorder.
	Model string
}

// Session is one chat session. It is single-threaded: a line is read, at most
// one request is in flight, and the reply is appended only after that
// request's response is known.
type Session struct {
	config    Config
	conv      *history.Conversation
	completer Completer
	reader    LineReader
	out       io.Writer
	logger    *zap.Logger
	state     State

	// Renderer formats output. Defaults to PlainRenderer.
	Renderer Renderer

	// Recorder is optional.
	Recorder Recorder
}

// New creates a Session over conv.
func New(config Config, conv *history.Conversation, completer Completer, reader LineReader, out io.Writer, logger *zap.Logger) *Session {
	return &Session{
		config:    config,
		conv:      conv,
		completer: completer,
		reader:    reader,
		out:       out,
		logger:    logger,
		state:     AwaitingInput,
		Renderer:  PlainRenderer{},
	}
}

// State returns the current loop state.
func (s *Session) State() State {
	return s.state
}

// Conversation returns the session history.
func (s *Session) Conversation() *history.Conversation {
	return s.conv
}

// Run prints the welcome banner and handles lines until the user quits or
// input ends. End of input and interrupts are normal exits.
func (s *Session) Run(ctx context.Context) error {
	s.notice("\nWelcome to picochat!")
	s.notice("Type your messages below. 'quit' to exit.")

	for s.state == AwaitingInput {
		line, err := s.reader.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("line reader stopped", zap.Error(err))
			}
			s.notice("\nExiting chat.")
			s.state = Exiting
			break
		}

		s.Handle(ctx, line)
	}

	return nil
}

// Handle processes one line of input and returns the resulting state.
func (s *Session) Handle(ctx context.Context, line string) State {
	if s.state == Exiting {
		return s.state
	}

	text := strings.TrimSpace(line)
	if text == "" {
		return s.state
	}

	if IsExitCommand(text) {
		s.notice("Goodbye!")
		s.state = Exiting
		return s.state
	}

	s.conv.AppendUser(text)
	view := s.conv.WindowedView(s.config.PairLimit)
	submitted := s.conv.Messages()

	startTime := time.Now()
	reply, err := s.completer.Complete(ctx, view)
	if err != nil {
		s.logger.Debug("completion failed",
			zap.Int("history_len", s.conv.Len()),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err),
		)
		if err := s.Renderer.Error(s.out, describe(err)); err != nil {
			s.logger.Warn("failed to write error notice", zap.Error(err))
		}
		return s.state
	}

	s.logger.Debug("completion succeeded",
		zap.Int("view_len", len(view)),
		zap.String("reply_preview", logger.Truncate(reply, 80)),
		zap.Duration("duration", time.Since(startTime)),
	)

	if err := s.Renderer.Reply(s.out, reply); err != nil {
		s.logger.Warn("failed to write reply", zap.Error(err))
	}
	s.conv.AppendAssistant(reply)
	s.record(ctx, submitted, reply)

	return s.state
}

func (s *Session) notice(text string) {
	if err := s.Renderer.Notice(s.out, text); err != nil {
		s.logger.Warn("failed to write notice", zap.Error(err))
	}
}

// record stores the full history behind a turn, not the windowed view, so
// every turn of a session extends the same chain.
func (s *Session) record(ctx context.Context, messages []llm.Message, reply string) {
	if s.Recorder == nil {
		return
	}

	head, err := s.Recorder.Record(ctx, llm.ConversationTurn{
		Model:    s.config.Model,
		Messages: messages,
		Reply:    llm.NewMessage(llm.RoleAssistant, reply),
	})
	if err != nil {
		s.logger.Warn("failed to record turn", zap.Error(err))
		return
	}
	s.logger.Debug("turn recorded", zap.String("head_hash", logger.Truncate(head, 16)))
}

// IsExitCommand reports whether text asks to leave the chat.
func IsExitCommand(text string) bool {
	return strings.EqualFold(text, "quit") || strings.EqualFold(text, "exit")
}

// describe turns a completion failure into a user-facing notice.
func describe(err error) string {
	var (
		netErr       *completion.NetworkError
		httpErr      *completion.HTTPError
		malformedErr *completion.MalformedResponseError
	)

	switch {
	case errors.As(err, &netErr):
		return fmt.Sprintf("[Error] Network/API error: %v", netErr.Err)
	case errors.As(err, &httpErr):
		detail := httpErr.Message
		if detail == "" {
			detail = logger.Truncate(strings.TrimSpace(httpErr.Body), 200)
		}
		return fmt.Sprintf("[Error] HTTP Error %d: %s", httpErr.StatusCode, detail)
	case errors.As(err, &malformedErr):
		return fmt.Sprintf("[Error] Invalid response format: %s", malformedErr.Detail)
	default:
		return fmt.Sprintf("[Error] No response: %v", err)
	}
}
