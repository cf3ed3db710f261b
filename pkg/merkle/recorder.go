package merkle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/picochat/pkg/llm"
	"github.com/papercomputeco/picochat/pkg/logger"
)

// Recorder stores completed conversation turns in a Storer. Each submitted
// message becomes a node linked to the previous one, and the reply is the
// head. Turns that share a prefix share nodes.
type Recorder struct {
	storer Storer
	logger *zap.Logger
}

// NewRecorder creates a Recorder writing to storer.
func NewRecorder(storer Storer, logger *zap.Logger) *Recorder {
	return &Recorder{storer: storer, logger: logger}
}

// Record stores turn and returns the hash of its head (reply) node.
func (r *Recorder) Record(ctx context.Context, turn llm.ConversationTurn) (string, error) {
	var parent *Node

	for _, msg := range turn.Messages {
		node := NewNode(Bucket{
			Type:    "message",
			Role:    msg.Role,
			Content: msg.Content,
			Model:   turn.Model,
		}, parent)

		if _, err := r.storer.Put(ctx, node); err != nil {
			return "", fmt.Errorf("storing message node: %w", err)
		}
		parent = node
	}

	head := NewNode(Bucket{
		Type:    "message",
		Role:    turn.Reply.Role,
		Content: turn.Reply.Content,
		Model:   turn.Model,
	}, parent)

	isNew, err := r.storer.Put(ctx, head)
	if err != nil {
		return "", fmt.Errorf("storing reply node: %w", err)
	}

	r.logger.Debug("recorded turn",
		zap.String("head_hash", logger.Truncate(head.Hash, 16)),
		zap.Int("depth", len(turn.Messages)+1),
		zap.Bool("new", isNew),
	)

	return head.Hash, nil
}

// Conversation returns the messages leading to hash, oldest first.
func Conversation(ctx context.Context, storer Storer, hash string) ([]llm.Message, error) {
	path, err := storer.Ancestry(ctx, hash)
	if err != nil {
		return nil, err
	}

	msgs := make([]llm.Message, len(path))
	for i, node := range path {
		msgs[len(path)-1-i] = llm.NewMessage(node.Bucket.Role, node.Bucket.Content)
	}
	return msgs, nil
}
