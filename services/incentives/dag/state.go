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
	"sync"
	"time"
)

// NodeStatus is the lifecycle state of one node in an execution.
type NodeStatus string

const (
	NodeStatusPending  NodeStatus = "pending"
	NodeStatusRunning  NodeStatus = "running"
	NodeStatusComplete NodeStatus = "complete"
	NodeStatusFailed   NodeStatus = "failed"
)

// State tracks one execution of a DAG. All access goes through the
// mutex; it is shared by the parallel node goroutines.
type State struct {
	mu sync.RWMutex

	SessionID      string
	NodeOutputs    map[string]any
	NodeStatuses   map[string]NodeStatus
	CompletedNodes map[string]bool
	CurrentNodes   []string
	FailedNode     string
	Error          string
	StartedAt      time.Time
}

// NewState creates an empty execution state.
func NewState(sessionID string) *State {
	return &State{
		SessionID:      sessionID,
		NodeOutputs:    make(map[string]any),
		NodeStatuses:   make(map[string]NodeStatus),
		CompletedNodes: make(map[string]bool),
		StartedAt:      time.Now(),
	}
}

// GetOutput returns a node's stored output.
func (s *State) GetOutput(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.NodeOutputs[name]
	return out, ok
}

// SetStatus updates a node's lifecycle status.
func (s *State) SetStatus(name string, status NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NodeStatuses[name] = status
}

// GetStatus returns a node's lifecycle status, pending by default.
func (s *State) GetStatus(name string) NodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status, ok := s.NodeStatuses[name]; ok {
		return status
	}
	return NodeStatusPending
}

// SetCompleted stores a node's output and marks it complete.
func (s *State) SetCompleted(name string, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NodeOutputs[name] = output
	s.NodeStatuses[name] = NodeStatusComplete
	s.CompletedNodes[name] = true
}

// IsCompleted reports whether a node has completed.
func (s *State) IsCompleted(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CompletedNodes[name]
}

// CompletedCount returns the number of completed nodes.
func (s *State) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.CompletedNodes)
}

// SetFailed records the first failure. Later failures from parallel
// siblings do not overwrite it.
func (s *State) SetFailed(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NodeStatuses[name] = NodeStatusFailed
	if s.FailedNode == "" {
		s.FailedNode = name
		s.Error = err.Error()
	}
}

// IsFailed reports whether any node has failed.
func (s *State) IsFailed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FailedNode != ""
}

// SetCurrentNodes records the set of nodes executing right now.
func (s *State) SetCurrentNodes(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentNodes = names
}

// IsDAGComplete reports whether every node in the graph has completed.
func (s *State) IsDAGComplete(d *DAG) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name := range d.nodes {
		if !s.CompletedNodes[name] {
			return false
		}
	}
	return true
}

// Result is the outcome of one DAG execution.
type Result struct {
	SessionID     string
	Success       bool
	Output        any
	Error         string
	FailedNode    string
	Duration      time.Duration
	NodesExecuted int
	NodeDurations map[string]time.Duration
}
