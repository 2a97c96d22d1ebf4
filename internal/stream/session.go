package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"meshview/internal/world"
)

// Time allowed for a cache-miss model fetch while serving an initial
// snapshot.
const snapshotFetchTimeout = 10 * time.Second

// session is the per-connection protocol handler. A connection moves from
// connected (registered, not yet subscribed) to subscribed on its first
// accepted subscribe; replies and replays for this connection go straight to
// its Conn, broadcasts reach it through the registry once subscribed.
type session struct {
	hub       *Hub
	projector world.Projector
	identity  string
	conn      Conn
	resumeTTL time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func newSession(hub *Hub, projector world.Projector, identity string, conn Conn, resumeTTL time.Duration, log *slog.Logger) *session {
	return &session{
		hub:       hub,
		projector: projector,
		identity:  identity,
		conn:      conn,
		resumeTTL: resumeTTL,
		log:       log,
		now:       hub.now,
	}
}

// HandleFrame interprets one inbound client frame.
func (s *session) HandleFrame(data []byte) {
	if !json.Valid(data) {
		s.sendError(CodeInvalidJSON, "frame is not valid JSON", false)
		return
	}

	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(CodeInvalidMessage, "frame does not match the protocol schema", false)
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		s.handleSubscribe(msg)
	case TypePing:
		s.sendPong()
	default:
		s.sendError(CodeInvalidMessage, "unknown message type", false)
	}
}

// closed detaches the connection from the registry. The expected-conn guard
// keeps a stale close callback from removing a replacement connection.
func (s *session) closed() {
	s.hub.registry.Remove(s.identity, s.conn)
}

func (s *session) handleSubscribe(msg InboundMessage) {
	if msg.Resume != nil && s.tryResume(msg.Resume) {
		return
	}
	// No resume block, or resume validation failed: resume is a best-effort
	// optimization, so every failure silently downgrades to a full snapshot.
	s.deliverSnapshot()
}

// tryResume validates the resume request and, if the requested range is still
// buffered, replays it. Returns false when the caller must fall back to a
// full snapshot.
func (s *session) tryResume(req *ResumeRequest) bool {
	tok := DecodeResumeToken(req.ResumeToken)
	if tok == nil {
		return false
	}
	if tok.Subscriber != s.identity {
		s.log.Debug("resume token identity mismatch", "subscriber", s.identity)
		return false
	}
	if !tok.ValidWithin(s.now().UnixMilli(), s.resumeTTL.Milliseconds()) {
		s.log.Debug("resume token expired", "subscriber", s.identity)
		return false
	}

	from := req.LastSeq + 1

	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs, ok := h.buffer.MessagesFrom(from)
	if !ok {
		s.log.Debug("resume range evicted", "subscriber", s.identity, "from", from)
		return false
	}

	seq := h.seq.Next()
	nowTS := s.now().UTC()
	token := EncodeResumeToken(ResumeToken{
		Subscriber: s.identity,
		LastSeq:    seq,
		IssuedAt:   nowTS.UnixMilli(),
	})
	ack, _ := json.Marshal(SubscribedMessage{
		Type:          TypeSubscribed,
		SchemaVersion: SchemaVersion,
		Seq:           seq,
		TS:            nowTS,
		Mode:          ModeResume,
		ResumeToken:   token,
		FromSeq:       from,
	})
	if err := s.conn.Send(ack); err != nil {
		return true
	}

	// Replay verbatim: buffered messages keep their original seq.
	for _, m := range msgs {
		if err := s.conn.Send(m.Payload); err != nil {
			break
		}
	}

	h.registry.MarkSubscribed(s.identity, s.conn)
	s.log.Info("subscriber resumed", "subscriber", s.identity, "from", from, "replayed", len(msgs))
	return true
}

func (s *session) deliverSnapshot() {
	snap := s.projector.CachedModel()
	if snap == nil {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotFetchTimeout)
		defer cancel()

		var err error
		snap, err = s.projector.FetchModel(ctx)
		if err != nil {
			s.log.Warn("initial snapshot fetch failed", "subscriber", s.identity, "error", err)
			s.sendError(CodeModelUnavailable, "world model unavailable, retry later", true)
			return
		}
	}

	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	ackSeq := h.seq.Next()
	nowTS := s.now().UTC()
	token := EncodeResumeToken(ResumeToken{
		Subscriber: s.identity,
		LastSeq:    ackSeq,
		IssuedAt:   nowTS.UnixMilli(),
	})
	ack, _ := json.Marshal(SubscribedMessage{
		Type:          TypeSubscribed,
		SchemaVersion: SchemaVersion,
		Seq:           ackSeq,
		TS:            nowTS,
		Mode:          ModeSnapshot,
		ResumeToken:   token,
	})
	if err := s.conn.Send(ack); err != nil {
		return
	}

	snapSeq := h.seq.Next()
	payload, _ := json.Marshal(SnapshotMessage{
		Type:          TypeSnapshot,
		SchemaVersion: SchemaVersion,
		Seq:           snapSeq,
		TS:            s.now().UTC(),
		Data:          snap,
	})
	h.buffer.Append(snapSeq, payload)
	if err := s.conn.Send(payload); err != nil {
		return
	}

	h.registry.MarkSubscribed(s.identity, s.conn)
	s.log.Info("subscriber snapshotted", "subscriber", s.identity, "seq", snapSeq)
}

func (s *session) sendPong() {
	payload, _ := json.Marshal(PongMessage{Type: TypePong, TS: s.now().UTC()})
	_ = s.conn.Send(payload)
}

func (s *session) sendError(code, message string, retryable bool) {
	payload, _ := json.Marshal(ErrorMessage{
		Type:      TypeError,
		Code:      code,
		Message:   message,
		Retryable: retryable,
	})
	_ = s.conn.Send(payload)
}
