package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator issues snowflake ids rendered as decimal strings.
type Generator struct {
	node *snowflake.Node
}

// New creates a generator for the given node number (0-1023).
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// MustNew is New for tests and tooling where a bad node id is a programming error.
func MustNew(nodeID int64) *Generator {
	g, err := New(nodeID)
	if err != nil {
		panic(err)
	}
	return g
}

// NewID returns the next id.
func (g *Generator) NewID() string {
	return g.node.Generate().String()
}
