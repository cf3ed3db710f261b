package merkle

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorer keeps nodes in a map for the lifetime of the process.
type MemoryStorer struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewMemoryStorer creates an empty MemoryStorer.
func NewMemoryStorer() *MemoryStorer {
	return &MemoryStorer{nodes: make(map[string]*Node)}
}

func (s *MemoryStorer) Put(_ context.Context, node *Node) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[node.Hash]; ok {
		return false, nil
	}
	s.nodes[node.Hash] = node
	return true, nil
}

func (s *MemoryStorer) Get(_ context.Context, hash string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[hash]
	if !ok {
		return nil, ErrNotFound{Hash: hash}
	}
	return node, nil
}

func (s *MemoryStorer) Has(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.nodes[hash]
	return ok, nil
}

func (s *MemoryStorer) List(_ context.Context) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	sortByHash(nodes)
	return nodes, nil
}

func (s *MemoryStorer) Roots(ctx context.Context) ([]*Node, error) {
	nodes, _ := s.List(ctx)

	roots := nodes[:0]
	for _, n := range nodes {
		if n.ParentHash == nil {
			roots = append(roots, n)
		}
	}
	return roots, nil
}

func (s *MemoryStorer) Leaves(ctx context.Context) ([]*Node, error) {
	nodes, _ := s.List(ctx)

	parents := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ParentHash != nil {
			parents[*n.ParentHash] = true
		}
	}

	leaves := make([]*Node, 0)
	for _, n := range nodes {
		if !parents[n.Hash] {
			leaves = append(leaves, n)
		}
	}
	return leaves, nil
}

func (s *MemoryStorer) Ancestry(ctx context.Context, hash string) ([]*Node, error) {
	return ancestry(ctx, hash, s.Get)
}

func (s *MemoryStorer) Close() error {
	return nil
}

func sortByHash(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Hash < nodes[j].Hash })
}
