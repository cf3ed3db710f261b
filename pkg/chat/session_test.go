package chat_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/papercomputeco/picochat/pkg/chat"
	"github.com/papercomputeco/picochat/pkg/completion"
	"github.com/papercomputeco/picochat/pkg/fakeapi"
	"github.com/papercomputeco/picochat/pkg/history"
	"github.com/papercomputeco/picochat/pkg/llm"
	"github.com/papercomputeco/picochat/pkg/merkle"
)

// stubCompleter returns scripted results and records every view it was given.
type stubCompleter struct {
	replies []string
	errs    []error
	views   [][]llm.Message
}

func (c *stubCompleter) Complete(_ context.Context, messages []llm.Message) (string, error) {
	c.views = append(c.views, append([]llm.Message(nil), messages...))
	i := len(c.views) - 1
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "ok", nil
}

// linesReader serves fixed lines, then the given terminal error.
type linesReader struct {
	lines []string
	end   error
}

func (r *linesReader) ReadLine() (string, error) {
	if len(r.lines) == 0 {
		return "", r.end
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

type failingRecorder struct{ calls int }

func (r *failingRecorder) Record(context.Context, llm.ConversationTurn) (string, error) {
	r.calls++
	return "", errors.New("disk full")
}

var _ = Describe("Session", func() {
	var (
		ctx       context.Context
		conv      *history.Conversation
		completer *stubCompleter
		out       *bytes.Buffer
		session   *chat.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		conv = history.New("sys")
		completer = &stubCompleter{}
		out = &bytes.Buffer{}
		session = chat.New(chat.Config{PairLimit: 6, Model: "m"}, conv, completer, &linesReader{end: io.EOF}, out, zap.NewNop())
	})

	Describe("Handle", func() {
		DescribeTable("exit commands",
			func(input string) {
				Expect(session.Handle(ctx, input)).To(Equal(chat.Exiting))
				Expect(completer.views).To(BeEmpty())
				Expect(conv.Len()).To(Equal(1))
				Expect(out.String()).To(ContainSubstring("Goodbye!"))
			},
			Entry("quit", "quit"),
			Entry("Quit", "Quit"),
			Entry("EXIT", "EXIT"),
			Entry("padded exit", "  exit  "),
		)

		DescribeTable("blank input",
			func(input string) {
				Expect(session.Handle(ctx, input)).To(Equal(chat.AwaitingInput))
				Expect(completer.views).To(BeEmpty())
				Expect(conv.Len()).To(Equal(1))
				Expect(out.String()).To(BeEmpty())
			},
			Entry("empty", ""),
			Entry("spaces", "   "),
			Entry("tabs and newline", "\t\n"),
		)

		It("does not treat words containing quit as exit", func() {
			Expect(session.Handle(ctx, "quitting time")).To(Equal(chat.AwaitingInput))
			Expect(completer.views).To(HaveLen(1))
		})

		It("appends the trimmed user message and the reply, and prints the reply", func() {
			completer.replies = []string{"hi there"}

			Expect(session.Handle(ctx, "  hello  ")).To(Equal(chat.AwaitingInput))

			Expect(conv.Messages()).To(Equal([]llm.Message{
				llm.NewMessage(llm.RoleSystem, "sys"),
				llm.NewMessage(llm.RoleUser, "hello"),
				llm.NewMessage(llm.RoleAssistant, "hi there"),
			}))
			Expect(out.String()).To(Equal("\nhi there\n"))
		})

		It("submits the history snapshot taken at submission time", func() {
			session.Handle(ctx, "first")
			session.Handle(ctx, "second")

			Expect(completer.views).To(HaveLen(2))
			Expect(completer.views[0]).To(HaveLen(2))
			Expect(completer.views[1]).To(Equal([]llm.Message{
				llm.NewMessage(llm.RoleSystem, "sys"),
				llm.NewMessage(llm.RoleUser, "first"),
				llm.NewMessage(llm.RoleAssistant, "ok"),
				llm.NewMessage(llm.RoleUser, "second"),
			}))
		})

		It("submits a windowed view once the history exceeds the pair limit", func() {
			session = chat.New(chat.Config{PairLimit: 1}, conv, completer, &linesReader{}, out, zap.NewNop())

			session.Handle(ctx, "one")
			session.Handle(ctx, "two")
			session.Handle(ctx, "three")

			last := completer.views[2]
			Expect(last).To(Equal([]llm.Message{
				llm.NewMessage(llm.RoleSystem, "sys"),
				llm.NewMessage(llm.RoleAssistant, "ok"),
				llm.NewMessage(llm.RoleUser, "three"),
			}))
			Expect(conv.Len()).To(Equal(7))
		})

		DescribeTable("failures keep the unanswered user message and continue",
			func(err error, notice string) {
				completer.errs = []error{err}

				Expect(session.Handle(ctx, "hello")).To(Equal(chat.AwaitingInput))

				Expect(conv.Messages()).To(Equal([]llm.Message{
					llm.NewMessage(llm.RoleSystem, "sys"),
					llm.NewMessage(llm.RoleUser, "hello"),
				}))
				Expect(out.String()).To(ContainSubstring(notice))
			},
			Entry("network", &completion.NetworkError{Err: errors.New("connection refused")},
				"[Error] Network/API error: connection refused"),
			Entry("http with api message", &completion.HTTPError{StatusCode: 401, Body: "{}", Message: "bad key"},
				"[Error] HTTP Error 401: bad key"),
			Entry("http with raw body", &completion.HTTPError{StatusCode: 502, Body: "bad gateway\n"},
				"[Error] HTTP Error 502: bad gateway"),
			Entry("malformed", &completion.MalformedResponseError{Detail: "no choices in response"},
				"[Error] Invalid response format: no choices in response"),
			Entry("other", errors.New("boom"), "[Error] No response: boom"),
		)

		It("sends the retained user message again with the next turn", func() {
			completer.errs = []error{&completion.NetworkError{Err: errors.New("down")}}

			session.Handle(ctx, "lost")
			session.Handle(ctx, "again")

			Expect(completer.views[1]).To(Equal([]llm.Message{
				llm.NewMessage(llm.RoleSystem, "sys"),
				llm.NewMessage(llm.RoleUser, "lost"),
				llm.NewMessage(llm.RoleUser, "again"),
			}))
		})

		It("ignores input after exiting", func() {
			session.Handle(ctx, "quit")

			Expect(session.Handle(ctx, "hello")).To(Equal(chat.Exiting))
			Expect(completer.views).To(BeEmpty())
		})

		It("keeps chatting when the recorder fails", func() {
			recorder := &failingRecorder{}
			session.Recorder = recorder

			Expect(session.Handle(ctx, "hello")).To(Equal(chat.AwaitingInput))
			Expect(recorder.calls).To(Equal(1))
			Expect(conv.Len()).To(Equal(3))
		})

		It("records every turn of a session on one chain once the view is windowed", func() {
			storer := merkle.NewMemoryStorer()
			completer.replies = []string{"a1", "a2", "a3", "a4"}
			session = chat.New(chat.Config{PairLimit: 1, Model: "m"}, conv, completer, &linesReader{end: io.EOF}, out, zap.NewNop())
			session.Recorder = merkle.NewRecorder(storer, zap.NewNop())

			for _, line := range []string{"q1", "q2", "q3", "q4"} {
				Expect(session.Handle(ctx, line)).To(Equal(chat.AwaitingInput))
			}
			Expect(completer.views[3]).To(HaveLen(3))

			leaves, err := storer.Leaves(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(leaves).To(HaveLen(1))

			recorded, err := merkle.Conversation(ctx, storer, leaves[0].Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(recorded).To(Equal(conv.Messages()))
		})

		It("logs output failures and keeps chatting", func() {
			core, logs := observer.New(zap.WarnLevel)
			completer.errs = []error{nil, &completion.NetworkError{Err: errors.New("refused")}}
			session = chat.New(chat.Config{PairLimit: 6}, conv, completer, &linesReader{end: io.EOF}, brokenWriter{}, zap.New(core))

			Expect(session.Handle(ctx, "hello")).To(Equal(chat.AwaitingInput))
			Expect(session.Handle(ctx, "again")).To(Equal(chat.AwaitingInput))

			Expect(conv.Len()).To(Equal(4))
			Expect(logs.FilterMessage("failed to write reply").Len()).To(Equal(1))
			Expect(logs.FilterMessage("failed to write error notice").Len()).To(Equal(1))
			Expect(logs.FilterMessage("completion failed").Len()).To(BeZero())
		})
	})

	Describe("Run", func() {
		It("exits on end of input without error", func() {
			reader := &linesReader{lines: []string{"hello"}, end: io.EOF}
			session = chat.New(chat.Config{PairLimit: 6}, conv, completer, reader, out, zap.NewNop())

			Expect(session.Run(ctx)).To(Succeed())
			Expect(session.State()).To(Equal(chat.Exiting))
			Expect(out.String()).To(ContainSubstring("Welcome to picochat!"))
			Expect(out.String()).To(HaveSuffix("\nExiting chat.\n"))
			Expect(conv.Len()).To(Equal(3))
		})

		It("treats an interrupt from the reader as a normal exit", func() {
			reader := &linesReader{end: errors.New("interrupted")}
			session = chat.New(chat.Config{}, conv, completer, reader, out, zap.NewNop())

			Expect(session.Run(ctx)).To(Succeed())
			Expect(session.State()).To(Equal(chat.Exiting))
		})

		It("keeps reading after a very long line", func() {
			long := strings.Repeat("x", 70*1024)
			reader := chat.NewScannerReader(strings.NewReader(long+"\nhello\nquit\n"), nil, chat.DefaultPrompt)
			session = chat.New(chat.Config{PairLimit: 6}, conv, completer, reader, out, zap.NewNop())

			Expect(session.Run(ctx)).To(Succeed())
			Expect(completer.views).To(HaveLen(2))
			Expect(conv.Messages()[1].Content).To(Equal(long))
			Expect(conv.Messages()[3].Content).To(Equal("hello"))
			Expect(out.String()).To(ContainSubstring("Goodbye!"))
			Expect(out.String()).NotTo(ContainSubstring("Exiting chat."))
		})

		It("stops reading after quit", func() {
			reader := &linesReader{lines: []string{"", "quit", "never sent"}, end: io.EOF}
			session = chat.New(chat.Config{}, conv, completer, reader, out, zap.NewNop())

			Expect(session.Run(ctx)).To(Succeed())
			Expect(completer.views).To(BeEmpty())
			Expect(reader.lines).To(Equal([]string{"never sent"}))
			Expect(out.String()).NotTo(ContainSubstring("Exiting chat."))
		})
	})

	Context("against a live endpoint", func() {
		var srv *fakeapi.Server

		BeforeEach(func() {
			srv = fakeapi.New(zap.NewNop())
			endpoint, err := srv.Start()
			Expect(err).NotTo(HaveOccurred())

			client := completion.NewClient(completion.Config{
				Endpoint: endpoint, APIKey: "sk-test", Model: "fake-model",
				Temperature: 0.7, TopP: 1, MaxTokens: 200, Timeout: 5 * time.Second,
			}, zap.NewNop())

			storer := merkle.NewMemoryStorer()
			reader := chat.NewScannerReader(strings.NewReader("hello\nagain\nQUIT\n"), nil, chat.DefaultPrompt)
			session = chat.New(chat.Config{PairLimit: 6, Model: "fake-model"}, conv, client, reader, out, zap.NewNop())
			session.Recorder = merkle.NewRecorder(storer, zap.NewNop())
		})

		AfterEach(func() {
			Expect(srv.Close()).To(Succeed())
		})

		It("runs a conversation, surviving an HTTP error mid-way", func() {
			srv.Enqueue(fakeapi.Content("  hi there  "), fakeapi.Status(http.StatusUnauthorized, "bad key"))

			Expect(session.Run(ctx)).To(Succeed())

			Expect(out.String()).To(ContainSubstring("\nhi there\n"))
			Expect(out.String()).To(ContainSubstring("[Error] HTTP Error 401: bad key"))
			Expect(out.String()).To(ContainSubstring("Goodbye!"))

			Expect(conv.Messages()).To(Equal([]llm.Message{
				llm.NewMessage(llm.RoleSystem, "sys"),
				llm.NewMessage(llm.RoleUser, "hello"),
				llm.NewMessage(llm.RoleAssistant, "hi there"),
				llm.NewMessage(llm.RoleUser, "again"),
			}))

			reqs := srv.Requests()
			Expect(reqs).To(HaveLen(2))
			Expect(reqs[0].Authorization).To(Equal("Bearer sk-test"))
			Expect(reqs[1].Body.Messages).To(HaveLen(4))
			Expect(reqs[1].Body.MaxTokens).To(Equal(200))
		})
	})
})

var _ = Describe("ScannerReader", func() {
	It("prompts, returns lines, then io.EOF", func() {
		prompts := &bytes.Buffer{}
		r := chat.NewScannerReader(strings.NewReader("a\nb\n"), prompts, "> ")

		line, err := r.ReadLine()
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("a"))

		line, err = r.ReadLine()
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("b"))

		_, err = r.ReadLine()
		Expect(err).To(MatchError(io.EOF))
		Expect(prompts.String()).To(Equal("\n> \n> \n> "))
	})

	It("returns lines longer than 64 KiB whole", func() {
		long := strings.Repeat("y", 100*1024)
		r := chat.NewScannerReader(strings.NewReader(long+"\r\nlast"), nil, "> ")

		line, err := r.ReadLine()
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal(long))

		line, err = r.ReadLine()
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("last"))

		_, err = r.ReadLine()
		Expect(err).To(MatchError(io.EOF))
	})

	It("is chosen for non-terminal input", func() {
		Expect(chat.NewLineReader(strings.NewReader(""), io.Discard)).To(BeAssignableToTypeOf(&chat.ScannerReader{}))
	})
})

var _ = Describe("IsExitCommand", func() {
	It("matches quit and exit case-insensitively", func() {
		Expect(chat.IsExitCommand("QuIt")).To(BeTrue())
		Expect(chat.IsExitCommand("Exit")).To(BeTrue())
		Expect(chat.IsExitCommand("bye")).To(BeFalse())
	})
})

var _ = Describe("StyledRenderer", func() {
	It("writes every reply, notice and error", func() {
		r, err := chat.NewStyledRenderer(false, 80)
		Expect(err).NotTo(HaveOccurred())

		buf := &bytes.Buffer{}
		Expect(r.Reply(buf, "answer")).To(Succeed())
		Expect(r.Notice(buf, "note")).To(Succeed())
		Expect(r.Error(buf, "[Error] bad")).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("answer"))
		Expect(buf.String()).To(ContainSubstring("note"))
		Expect(buf.String()).To(ContainSubstring("[Error] bad"))
	})

	It("renders markdown replies", func() {
		r, err := chat.NewStyledRenderer(true, 80)
		Expect(err).NotTo(HaveOccurred())

		buf := &bytes.Buffer{}
		Expect(r.Reply(buf, "**bold** text")).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("bold"))
		Expect(buf.String()).To(HavePrefix("\n"))
	})
})
