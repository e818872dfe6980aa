package inspector

import (
	"encoding/json"
	"errors"
)

// Request operations.
const (
	OpTypes     = "types"
	OpLiving    = "living"
	OpSerialize = "serialize"
	OpGet       = "get"
	OpSet       = "set"
	OpObserve   = "observe"
	OpUnobserve = "unobserve"
	OpDestroy   = "destroy"

	// OpNotify frames are pushed by the server for observed handles.
	OpNotify = "notify"
)

var (
	ErrServerClosed         = errors.New("inspector is closed")
	ErrServerAlreadyRunning = errors.New("inspector is already running")
	ErrServerNotRunning     = errors.New("inspector is not running")
	ErrUnknownOp            = errors.New("unknown operation")
	ErrUnknownType          = errors.New("unknown type")
	ErrUnknownProperty      = errors.New("unknown property")
	ErrNotAlive             = errors.New("handle is not alive")
	ErrMissingObservable    = errors.New("observable is required")
	ErrUnknownSubscription  = errors.New("unknown subscription")
	ErrPrivate              = errors.New("property is private")
	ErrNotEditable          = errors.New("property is not editor editable")
)

// Request is one client frame. Handles travel as decimal strings so 64-bit ids
// survive JSON number handling.
type Request struct {
	ID       string          `json:"id,omitempty"`
	Op       string          `json:"op"`
	Type     string          `json:"type,omitempty"`
	Handle   uint64          `json:"handle,string,omitempty"`
	Property string          `json:"property,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`

	// Observable is the event name for OpObserve.
	Observable string `json:"observable,omitempty"`
	// Subscription names the subscription cancelled by OpUnobserve.
	Subscription string `json:"subscription,omitempty"`
}

// Response answers the request with the same ID.
type Response struct {
	ID    string `json:"id,omitempty"`
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Notification is pushed when an observed observable is broadcast.
type Notification struct {
	Op           string `json:"op"`
	Subscription string `json:"subscription"`
	Handle       uint64 `json:"handle,string"`
	Observable   string `json:"observable"`
}

type TypeSummary struct {
	ID         uint16            `json:"id"`
	Name       string            `json:"name"`
	Module     string            `json:"module"`
	Component  bool              `json:"component"`
	Capacity   uint32            `json:"capacity"`
	Living     int               `json:"living"`
	Properties []PropertySummary `json:"properties"`
	Functions  []string          `json:"functions,omitempty"`
}

type PropertySummary struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	HandleType     string `json:"handle_type,omitempty"`
	Readable       bool   `json:"readable"`
	Writable       bool   `json:"writable"`
	EditorEditable bool   `json:"editor_editable,omitempty"`
}
