// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput indicates a nil or malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilNode indicates a nil node was added to a builder.
	ErrNilNode = errors.New("node must not be nil")

	// ErrDuplicateNode indicates two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node name")

	// ErrNodeNotFound indicates a declared dependency does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoProgress indicates no node is ready but the graph is
	// incomplete, which means the dependency structure deadlocked.
	ErrNoProgress = errors.New("no nodes ready to execute")

	// ErrNodeTimeout indicates a node exceeded its timeout.
	ErrNodeTimeout = errors.New("node execution timed out")
)

// NodeError wraps an error with the node it came from.
type NodeError struct {
	NodeName string
	Err      error
}

func NewNodeError(name string, err error) *NodeError {
	return &NodeError{NodeName: name, Err: err}
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeName, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// CycleError reports a dependency cycle with the offending path.
type CycleError struct {
	Path []string
}

func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}
