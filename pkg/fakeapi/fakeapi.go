// Package fakeapi serves a scripted OpenAI-compatible chat completions
// endpoint on a local port, for exercising the client end to end.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/picochat/pkg/llm"
	"github.com/papercomputeco/picochat/pkg/logger"
)

// Path is the route the fake endpoint serves.
const Path = "/v1/chat/completions"

// Reply is one scripted response.
type Reply struct {
	Status int
	Body   string
}

// Content returns a 200 Reply carrying content as choices[0].message.content.
func Content(content string) Reply {
	body, _ := json.Marshal(llm.ChatResponse{
		Choices: []llm.Choice{{
			Message: &llm.ChoiceMessage{Role: llm.RoleAssistant, Content: &content},
		}},
	})
	return Reply{Status: fiber.StatusOK, Body: string(body)}
}

// Status returns a Reply with an OpenAI-style error body.
func Status(status int, message string) Reply {
	body, _ := json.Marshal(llm.ErrorResponse{Error: &llm.APIError{Message: message, Type: "test_error"}})
	return Reply{Status: status, Body: string(body)}
}

// Request is a request received by the server.
type Request struct {
	Authorization string
	ContentType   string
	Body          llm.ChatRequest
}

// Server is the fake endpoint. Scripted replies are served in order; once
// they run out, the server echoes the last user message.
type Server struct {
	mu       sync.Mutex
	replies  []Reply
	requests []Request

	app      *fiber.App
	logger   *zap.Logger
	endpoint string
}

// New creates a Server. Call Start to begin serving.
func New(logger *zap.Logger) *Server {
	s := &Server{logger: logger}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})
	app.Post(Path, s.handleChat)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	s.app = app
	return s
}

// Enqueue appends scripted replies.
func (s *Server) Enqueue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Start listens on a random loopback port and returns the endpoint URL.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.app.Listener(ln); err != nil {
			s.logger.Error("fake api stopped", zap.Error(err))
		}
	}()

	s.endpoint = "http://" + ln.Addr().String() + Path
	s.logger.Debug("fake api listening", zap.String("endpoint", s.endpoint))
	return s.endpoint, nil
}

// Endpoint returns the URL returned by Start.
func (s *Server) Endpoint() string {
	return s.endpoint
}

// Close stops the server.
func (s *Server) Close() error {
	return s.app.Shutdown()
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Error("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: &llm.APIError{Message: "invalid request body"},
		})
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Authorization: c.Get(fiber.HeaderAuthorization),
		ContentType:   c.Get(fiber.HeaderContentType),
		Body:          req,
	})
	var reply Reply
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	} else {
		reply = Content("echo: " + lastUser(req.Messages))
	}
	s.mu.Unlock()

	s.logger.Debug("serving scripted reply",
		zap.Int("status", reply.Status),
		zap.Int("message_count", len(req.Messages)),
		zap.String("body_preview", logger.Truncate(reply.Body, 100)),
	)

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(reply.Status).SendString(reply.Body)
}

func lastUser(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
