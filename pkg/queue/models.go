package queue

import (
	"encoding/json"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// Request is one inbound chat message waiting in the "requests" list.
type Request struct {
	RequestID  string        `json:"request_id"`
	Message    quest.Inbound `json:"message"`
	Attempts   int           `json:"attempts,omitempty"` // times re-queued because the user was locked
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
