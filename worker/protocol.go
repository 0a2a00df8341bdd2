package worker

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
)

// MessageType names a worker operation.
type MessageType string

// Operations understood by the geometry worker.
const (
	TypeProcess  MessageType = "process"
	TypeAnalyze  MessageType = "analyze"
	TypeSimplify MessageType = "simplify"
	TypeCluster  MessageType = "cluster"
	TypeExport   MessageType = "export"
)

// Valid reports whether t is a known operation.
func (t MessageType) Valid() bool {
	switch t {
	case TypeProcess, TypeAnalyze, TypeSimplify, TypeCluster, TypeExport:
		return true
	}
	return false
}

// Message is what callers submit to a Pool. Data is encoded as JSON.
type Message struct {
	Type MessageType
	Data any
}

// Request is the wire form of a task sent to a worker.
type Request struct {
	ID   string          `json:"id"`
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the wire form of a worker reply. A non-empty Error with no
// Result marks the task as failed.
type Response struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Metrics Metrics         `json:"metrics"`
}

// Decode unmarshals the result into v.
func (r Response) Decode(v any) error {
	if len(r.Result) == 0 {
		return fmt.Errorf("worker: response %s has no result", r.ID)
	}
	return json.Unmarshal(r.Result, v)
}

// Metrics describes the work done for one task.
type Metrics struct {
	// Duration is the handler time in milliseconds.
	Duration         float64 `json:"duration"`
	ObjectsProcessed int     `json:"objectsProcessed"`
}

// Handler executes requests on the worker side.
type Handler interface {
	Handle(req Request) (result any, processed int, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req Request) (any, int, error)

// Handle calls f.
func (f HandlerFunc) Handle(req Request) (any, int, error) { return f(req) }

// Respond runs h for req and builds the response.
func Respond(h Handler, req Request) Response {
	start := time.Now()
	result, processed, err := h.Handle(req)

	resp := Response{
		ID:   req.ID,
		Type: req.Type,
		Metrics: Metrics{
			Duration:         float64(time.Since(start)) / float64(time.Millisecond),
			ObjectsProcessed: processed,
		},
	}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			resp.Error = fmt.Sprintf("encode result: %v", err)
			return resp
		}
		resp.Result = data
	}
	return resp
}
