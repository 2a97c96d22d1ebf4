package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"

	"meshview/internal/identity"
	"meshview/internal/world"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     safeCheckOrigin,
}

// safeCheckOrigin validates websocket connection origins. It allows empty
// origins (non-browser clients), the exact request host, and same-host
// origins on a different port for local development.
func safeCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}

	originHost := strings.Split(u.Host, ":")[0]
	requestHost := strings.Split(r.Host, ":")[0]
	return strings.EqualFold(originHost, requestHost)
}

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// connectQuery is the query-parameter surface of the websocket endpoint.
type connectQuery struct {
	Token       string `schema:"token"`
	AccessToken string `schema:"access_token"`
}

func (q connectQuery) bearer() string {
	if q.Token != "" {
		return q.Token
	}
	return q.AccessToken
}

// Server exposes the streaming subsystem over HTTP: the websocket endpoint
// and a small operator stats endpoint.
type Server struct {
	hub       *Hub
	projector world.Projector
	verifier  identity.Verifier
	cfg       Config
	log       *slog.Logger
	mux       *http.ServeMux
}

func NewServer(hub *Hub, projector world.Projector, verifier identity.Verifier, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		hub:       hub,
		projector: projector,
		verifier:  verifier,
		cfg:       cfg,
		log:       log,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/world/ws", s.HandleWS)
	s.mux.HandleFunc("/streamz", s.HandleStats)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// HandleWS upgrades the connection and authenticates it. The bearer token is
// checked before any protocol message is exchanged: a missing token closes
// with 4001, an invalid one with 4002, each preceded by a single error frame.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	var q connectQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		http.Error(w, "bad query parameters", http.StatusBadRequest)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	token := q.bearer()
	if token == "" {
		rejectConn(raw, CodeMissingToken, "bearer token required", closeCodeMissingToken)
		return
	}

	principal, err := s.verifier.Verify(token)
	if err != nil {
		s.log.Debug("connection rejected", "error", err)
		rejectConn(raw, CodeInvalidToken, "bearer token rejected", closeCodeInvalidToken)
		return
	}

	conn := newWSConn(raw, s.log)
	s.hub.registry.Add(principal.Subscriber, conn)
	sess := newSession(s.hub, s.projector, principal.Subscriber, conn, s.cfg.ResumeTTL, s.log)

	s.log.Info("connection established", "subscriber", principal.Subscriber, "conn", conn.id)
	go conn.writePump()
	go conn.readPump(sess)
}

// HandleStats serves hub counters as JSON.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.hub.Stats()); err != nil {
		s.log.Debug("stats encode failed", "error", err)
	}
}

// rejectConn writes a single error frame and closes the raw socket with the
// distinguishing close code. The session never starts for these connections.
func rejectConn(raw *websocket.Conn, code, message string, closeCode int) {
	payload, _ := json.Marshal(ErrorMessage{
		Type:      TypeError,
		Code:      code,
		Message:   message,
		Retryable: false,
	})
	raw.SetWriteDeadline(time.Now().Add(writeWait))
	_ = raw.WriteMessage(websocket.TextMessage, payload)
	_ = raw.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, message))
	_ = raw.Close()
}
