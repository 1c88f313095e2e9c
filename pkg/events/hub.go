// Package events provides in-process pub/sub for chain lifecycle events.
package events

import "time"

// Event types emitted during chain execution.
const (
	ChainStarted   = "chain.started"
	TaskStarted    = "task.started"
	TaskCompleted  = "task.completed"
	ChainCompleted = "chain.completed"
	ChainAborted   = "chain.aborted"
)

// Event is a real-time notification emitted during chain execution.
type Event struct {
	ChainID    string    `json:"chain_id"`
	SharedName string    `json:"shared_name,omitempty"`
	TaskIndex  int       `json:"task_index,omitempty"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
}

// Filter specifies which events a subscriber wants to receive.
type Filter struct {
	ChainID string   `json:"chain_id,omitempty"`
	Types   []string `json:"types,omitempty"`
}

// Hub provides pub/sub for chain lifecycle events.
type Hub interface {
	Publish(event Event)
	Subscribe(filter Filter) (<-chan Event, func())
}
