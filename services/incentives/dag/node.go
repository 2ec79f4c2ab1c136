// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dag is the session pipeline engine: a validated directed
// acyclic graph of named nodes executed with maximum parallelism,
// instrumented with OpenTelemetry.
package dag

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DefaultNodeTimeout is the default timeout for nodes that don't specify one.
const DefaultNodeTimeout = 120 * time.Second

// Node is one unit of pipeline work.
type Node interface {
	// Name returns the node's unique identifier.
	Name() string

	// Dependencies returns the names of nodes that must complete first.
	Dependencies() []string

	// Timeout returns the maximum execution time for this node.
	Timeout() time.Duration

	// Execute runs the node. inputs maps each dependency name to its
	// output; root nodes receive the pipeline input under "root".
	Execute(ctx context.Context, inputs map[string]any) (any, error)
}

// BaseNode provides a partial implementation of the Node interface.
//
// Description:
//
//	BaseNode implements the common parts of Node (name, dependencies,
//	timeout). Embed this in concrete node implementations and override
//	Execute.
type BaseNode struct {
	NodeName         string
	NodeDependencies []string
	NodeTimeout      time.Duration
}

// Name returns the node's unique identifier.
func (n *BaseNode) Name() string {
	return n.NodeName
}

// Dependencies returns the names of nodes that must complete first.
func (n *BaseNode) Dependencies() []string {
	if n.NodeDependencies == nil {
		return []string{}
	}
	return n.NodeDependencies
}

// Timeout returns the maximum execution time for this node.
func (n *BaseNode) Timeout() time.Duration {
	if n.NodeTimeout == 0 {
		return DefaultNodeTimeout
	}
	return n.NodeTimeout
}

// Execute returns an error if called directly.
// Concrete implementations must override this method.
func (n *BaseNode) Execute(_ context.Context, _ map[string]any) (any, error) {
	return nil, fmt.Errorf("%w: BaseNode.Execute must be overridden by concrete implementation", ErrInvalidInput)
}

// Edge is a dependency arrow between two nodes.
type Edge struct {
	From string
	To   string
}

// DAG is a validated, immutable graph ready for execution.
type DAG struct {
	name     string
	nodes    map[string]Node
	edges    []Edge
	adjList  map[string][]string
	terminal string
}

func (d *DAG) Name() string { return d.name }

func (d *DAG) NodeCount() int { return len(d.nodes) }

// Terminal returns the node whose output is the pipeline's result.
func (d *DAG) Terminal() string { return d.terminal }

// NodeNames returns all node names in sorted order for determinism.
func (d *DAG) NodeNames() []string {
	names := make([]string, 0, len(d.nodes))
	for name := range d.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetNode looks up a node by name.
func (d *DAG) GetNode(name string) (Node, bool) {
	node, ok := d.nodes[name]
	return node, ok
}

// GetDependencies returns the dependency names for a node.
func (d *DAG) GetDependencies(name string) []string {
	return d.adjList[name]
}

// Builder constructs a DAG with validation.
//
// Description:
//
//	Builder provides a fluent API for constructing DAGs. It validates that
//	all dependencies exist and that no cycles are present.
//
// Thread Safety:
//
//	Builder is NOT safe for concurrent use. Build the DAG in a single goroutine.
//
// Example:
//
//	dag, err := dag.NewBuilder("discovery").
//	    AddNode(federalNode).
//	    AddNode(joinNode).
//	    Build()
type Builder struct {
	name   string
	nodes  map[string]Node
	edges  []Edge
	errors []error
}

// NewBuilder creates a new DAG builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		nodes:  make(map[string]Node),
		edges:  make([]Edge, 0),
		errors: make([]error, 0),
	}
}

// AddNode adds a node to the DAG.
//
// Description:
//
//	Adds a node and automatically creates edges from its declared dependencies.
//	If a node with the same name already exists, an error is recorded.
func (b *Builder) AddNode(node Node) *Builder {
	if node == nil {
		b.errors = append(b.errors, ErrNilNode)
		return b
	}

	name := node.Name()
	if _, exists := b.nodes[name]; exists {
		b.errors = append(b.errors, &NodeError{NodeName: name, Err: ErrDuplicateNode})
		return b
	}

	b.nodes[name] = node

	// Create edges from dependencies
	for _, dep := range node.Dependencies() {
		b.edges = append(b.edges, Edge{From: dep, To: name})
	}

	return b
}

// Build validates and constructs the DAG.
//
// Description:
//
//	Validates that all dependencies exist and no cycles are present.
//	Returns an error if validation fails.
func (b *Builder) Build() (*DAG, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	if len(b.nodes) == 0 {
		return nil, ErrInvalidInput
	}

	// Validate dependencies exist
	for _, edge := range b.edges {
		if _, exists := b.nodes[edge.From]; !exists {
			return nil, &NodeError{NodeName: edge.To, Err: ErrNodeNotFound}
		}
	}

	// Build adjacency list
	adjList := make(map[string][]string)
	for name := range b.nodes {
		adjList[name] = b.nodes[name].Dependencies()
	}

	// Check for cycles using DFS
	if err := b.detectCycles(adjList); err != nil {
		return nil, err
	}

	terminal := b.findTerminal()

	return &DAG{
		name:     b.name,
		nodes:    b.nodes,
		edges:    b.edges,
		adjList:  adjList,
		terminal: terminal,
	}, nil
}

// detectCycles uses DFS to detect cycles in the graph.
func (b *Builder) detectCycles(adjList map[string][]string) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	var dfs func(node string) error
	dfs = func(node string) error {
		visited[node] = true
		recStack[node] = true
		path = append(path, node)

		for _, dep := range adjList[node] {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				// Found cycle - find where it starts
				cycleStart := -1
				for i, n := range path {
					if n == dep {
						cycleStart = i
						break
					}
				}
				cyclePath := append(path[cycleStart:], dep)
				return NewCycleError(cyclePath)
			}
		}

		path = path[:len(path)-1]
		recStack[node] = false
		return nil
	}

	for name := range b.nodes {
		if !visited[name] {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}

	return nil
}

// findTerminal finds the node with no dependents (terminal node).
// If multiple terminals exist, returns the lexicographically first one for determinism.
func (b *Builder) findTerminal() string {
	hasDependent := make(map[string]bool)
	for _, edge := range b.edges {
		hasDependent[edge.From] = true
	}

	var terminals []string
	for name := range b.nodes {
		if !hasDependent[name] {
			terminals = append(terminals, name)
		}
	}

	if len(terminals) == 0 {
		return ""
	}

	sort.Strings(terminals)
	return terminals[0]
}

// FuncNode wraps a function as a Node for simple cases.
//
// Example:
//
//	node := dag.NewFuncNode("JOIN", []string{"FEDERAL", "STATE"}, func(ctx, inputs) (any, error) {
//	    return merge(inputs), nil
//	})
type FuncNode struct {
	BaseNode
	fn func(context.Context, map[string]any) (any, error)
}

// NewFuncNode creates a node from a function.
func NewFuncNode(
	name string,
	deps []string,
	fn func(context.Context, map[string]any) (any, error),
) *FuncNode {
	return &FuncNode{
		BaseNode: BaseNode{
			NodeName:         name,
			NodeDependencies: deps,
		},
		fn: fn,
	}
}

// Execute runs the wrapped function.
func (n *FuncNode) Execute(ctx context.Context, inputs map[string]any) (any, error) {
	if n.fn == nil {
		return nil, ErrInvalidInput
	}
	return n.fn(ctx, inputs)
}

// WithTimeout sets the timeout for a FuncNode.
func (n *FuncNode) WithTimeout(d time.Duration) *FuncNode {
	n.NodeTimeout = d
	return n
}
