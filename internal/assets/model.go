// Package assets describes loaded avatar models (a scene-graph node tree plus
// named animation clips) and the loader collaborator that produces them.
package assets

import (
	"context"
	"errors"
)

// ErrUnknownAsset is returned when a loader has no entry for an asset id.
var ErrUnknownAsset = errors.New("assets: unknown asset")

// Clip is a named animation sequence playable on a model's skeleton.
type Clip struct {
	Name     string  `json:"name" yaml:"name"`
	Duration float64 `json:"duration" yaml:"duration"` // seconds
}

// Node is one element of a model's scene graph.
type Node struct {
	Name     string
	Position [3]float64
	Scale    [3]float64
	Children []*Node
}

// Clone deep-copies the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Name: n.Name, Position: n.Position, Scale: n.Scale}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, child := range n.Children {
		total += child.Count()
	}
	return total
}

// Model is a loaded avatar: node graph plus ordered clip catalog.
type Model struct {
	ID    string
	URL   string
	Root  *Node
	Clips []Clip
}

// Clone returns an independent deep copy so several animation controllers
// can drive the same asset without sharing node state.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	clips := make([]Clip, len(m.Clips))
	copy(clips, m.Clips)
	return &Model{ID: m.ID, URL: m.URL, Root: m.Root.Clone(), Clips: clips}
}

// Loader resolves an asset id to a model.
type Loader interface {
	Load(ctx context.Context, id string) (*Model, error)
}
