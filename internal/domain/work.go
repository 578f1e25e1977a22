package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateWork = errors.New("duplicate work name")
	ErrUnknownWork   = errors.New("edge references unknown work")
	ErrCyclicWork    = errors.New("work graph contains a cycle")
)

// SparkWork is the work descriptor produced by query compilation. Vertices
// are referenced by name from the edge list.
type SparkWork struct {
	Name    string      `cbor:"name" json:"name"`
	QueryID string      `cbor:"queryId" json:"queryId"`
	Works   []*BaseWork `cbor:"works" json:"works"`
	Edges   []WorkEdge  `cbor:"edges" json:"edges,omitempty"`
}

// BaseWork is a single vertex (map or reduce side) of a SparkWork
type BaseWork struct {
	Name           string            `cbor:"name" json:"name"`
	Operators      []string          `cbor:"operators" json:"operators,omitempty"`
	NumReduceTasks int               `cbor:"numReduceTasks" json:"numReduceTasks,omitempty"`
	Properties     map[string]string `cbor:"properties" json:"properties,omitempty"`
}

// WorkEdge connects two vertices
type WorkEdge struct {
	Parent      string `cbor:"parent" json:"parent"`
	Child       string `cbor:"child" json:"child"`
	ShuffleType string `cbor:"shuffleType" json:"shuffleType,omitempty"`
}

// Work returns the vertex with the given name
func (w *SparkWork) Work(name string) (*BaseWork, bool) {
	for _, bw := range w.Works {
		if bw.Name == name {
			return bw, true
		}
	}
	return nil, false
}

// Roots returns the vertices without parents, in declaration order
func (w *SparkWork) Roots() []*BaseWork {
	hasParent := make(map[string]bool, len(w.Edges))
	for _, e := range w.Edges {
		hasParent[e.Child] = true
	}
	roots := make([]*BaseWork, 0)
	for _, bw := range w.Works {
		if !hasParent[bw.Name] {
			roots = append(roots, bw)
		}
	}
	return roots
}

// Leaves returns the vertices without children, in declaration order
func (w *SparkWork) Leaves() []*BaseWork {
	hasChild := make(map[string]bool, len(w.Edges))
	for _, e := range w.Edges {
		hasChild[e.Parent] = true
	}
	leaves := make([]*BaseWork, 0)
	for _, bw := range w.Works {
		if !hasChild[bw.Name] {
			leaves = append(leaves, bw)
		}
	}
	return leaves
}

// Validate checks names are unique, edges resolve and the graph is acyclic
func (w *SparkWork) Validate() error {
	_, err := w.TopologicalOrder()
	return err
}

// TopologicalOrder returns the vertices so that every parent precedes its children
func (w *SparkWork) TopologicalOrder() ([]*BaseWork, error) {
	byName := make(map[string]*BaseWork, len(w.Works))
	for _, bw := range w.Works {
		if bw == nil {
			return nil, fmt.Errorf("%w: nil vertex", ErrUnknownWork)
		}
		if _, dup := byName[bw.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWork, bw.Name)
		}
		byName[bw.Name] = bw
	}

	inDegree := make(map[string]int, len(w.Works))
	children := make(map[string][]string, len(w.Works))
	for _, e := range w.Edges {
		if _, ok := byName[e.Parent]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWork, e.Parent)
		}
		if _, ok := byName[e.Child]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWork, e.Child)
		}
		inDegree[e.Child]++
		children[e.Parent] = append(children[e.Parent], e.Child)
	}

	queue := make([]string, 0, len(w.Works))
	for _, bw := range w.Works {
		if inDegree[bw.Name] == 0 {
			queue = append(queue, bw.Name)
		}
	}

	ordered := make([]*BaseWork, 0, len(w.Works))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byName[name])
		for _, child := range children[name] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(ordered) != len(w.Works) {
		return nil, ErrCyclicWork
	}
	return ordered, nil
}
