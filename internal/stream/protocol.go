package stream

import (
	"time"

	"meshview/internal/world"
)

// SchemaVersion is stamped on every outbound protocol message.
const SchemaVersion = 1

// Inbound message types (client -> server).
const (
	TypeSubscribe = "world.subscribe"
	TypePing      = "world.ping"
)

// Outbound message types (server -> client).
const (
	TypeSubscribed = "world.subscribed"
	TypeSnapshot   = "world.snapshot"
	TypeDelta      = "world.delta"
	TypeError      = "world.error"
	TypePong       = "world.pong"
)

// Subscription delivery modes.
const (
	ModeSnapshot = "snapshot"
	ModeResume   = "resume"
)

// Error codes.
const (
	CodeInvalidJSON      = "INVALID_JSON"
	CodeInvalidMessage   = "INVALID_MESSAGE"
	CodeMissingToken     = "MISSING_TOKEN"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeModelUnavailable = "MODEL_UNAVAILABLE"
)

// Websocket close codes used before the protocol starts.
const (
	closeCodeMissingToken = 4001
	closeCodeInvalidToken = 4002
)

// InboundMessage is the envelope for client frames, one JSON message per
// frame.
type InboundMessage struct {
	Type   string         `json:"type"`
	Resume *ResumeRequest `json:"resume,omitempty"`
}

// ResumeRequest is the optional resume block on a subscribe. LastSeq is the
// highest seq the client has processed; it governs where replay starts and
// may be newer than the seq recorded inside the token.
type ResumeRequest struct {
	LastSeq     uint64 `json:"lastSeq"`
	ResumeToken string `json:"resumeToken"`
}

// SubscribedMessage acknowledges a subscribe, in either mode. FromSeq is set
// only for resume mode.
type SubscribedMessage struct {
	Type          string    `json:"type"`
	SchemaVersion int       `json:"schemaVersion"`
	Seq           uint64    `json:"seq"`
	TS            time.Time `json:"ts"`
	Mode          string    `json:"mode"`
	ResumeToken   string    `json:"resumeToken"`
	FromSeq       uint64    `json:"fromSeq,omitempty"`
}

// SnapshotMessage carries a full world snapshot.
type SnapshotMessage struct {
	Type          string          `json:"type"`
	SchemaVersion int             `json:"schemaVersion"`
	Seq           uint64          `json:"seq"`
	TS            time.Time       `json:"ts"`
	Data          *world.Snapshot `json:"data"`
}

// DeltaMessage carries a batch of delta events.
type DeltaMessage struct {
	Type          string             `json:"type"`
	SchemaVersion int                `json:"schemaVersion"`
	Seq           uint64             `json:"seq"`
	TS            time.Time          `json:"ts"`
	Events        []world.DeltaEvent `json:"events"`
}

// ErrorMessage reports a protocol or auth failure to one connection.
type ErrorMessage struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// PongMessage answers a ping.
type PongMessage struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`
}
