// Package chattest provides an in-process chat server speaking the carechat
// wire protocol, for tests and local experiments. It relays patient and
// expert frames by identity, answers the automated endpoint with a canned
// responder and accepts discharge note uploads, forwarding each note to
// connected experts as a note frame.
package chattest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/inercia/carechat/internal/config"
	"github.com/inercia/carechat/internal/conversation"
)

// NoExpertText is sent back to a patient when no expert is connected.
const NoExpertText = "No expert connected. Please wait for an expert to connect."

// NoPatientText is sent back to an expert when no patient is connected.
const NoPatientText = "No patient connected. Please wait for a patient to connect."

// Upload is a recorded note submission.
type Upload struct {
	Identity string
	FileName string
	Text     string
}

// peer is one accepted websocket.
type peer struct {
	identity string
	ws       *websocket.Conn
	writeMu  sync.Mutex
}

func (p *peer) send(text string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// Handler serves the chat endpoints. The zero value is not usable; use
// NewHandler.
type Handler struct {
	endpoints     config.Endpoints
	identityParam string
	upgrader      websocket.Upgrader
	logger        *slog.Logger

	mu        sync.Mutex
	responder func(identity, text string) string
	patients  map[*peer]struct{}
	experts   map[*peer]struct{}
	bots      map[*peer]struct{}
	uploads   []Upload

	rejectUploads int
}

// NewHandler returns a handler using the default endpoint layout.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	def := config.Default()
	return &Handler{
		endpoints:     def.Server.Endpoints,
		identityParam: def.Server.IdentityParam,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		responder: func(_, text string) string {
			return "You said: " + text
		},
		patients: make(map[*peer]struct{}),
		experts:  make(map[*peer]struct{}),
		bots:     make(map[*peer]struct{}),
	}
}

// ServeHTTP routes a request to the matching endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case h.endpoints.PatientExpert:
		h.serveWS(w, r, h.patients, h.relayToExperts)
	case h.endpoints.Expert:
		h.serveWS(w, r, h.experts, h.relayToPatients)
	case h.endpoints.PatientAutomated:
		h.serveWS(w, r, h.bots, h.respond)
	case h.endpoints.Upload:
		h.serveUpload(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request, group map[*peer]struct{}, onText func(from *peer, text string)) {
	identity := r.URL.Query().Get(h.identityParam)
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}
	p := &peer{identity: identity, ws: ws}

	h.mu.Lock()
	group[p] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("connected", "path", r.URL.Path, "identity", identity)

	defer func() {
		h.mu.Lock()
		delete(group, p)
		h.mu.Unlock()
		ws.Close()
		h.logger.Info("disconnected", "path", r.URL.Path, "identity", identity)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		onText(p, string(data))
	}
}

func (h *Handler) relayToExperts(from *peer, text string) {
	if n := h.broadcast(h.experts, text); n == 0 {
		from.send(NoExpertText)
	}
}

func (h *Handler) relayToPatients(from *peer, text string) {
	if n := h.broadcast(h.patients, text); n == 0 {
		from.send(NoPatientText)
	}
}

func (h *Handler) respond(from *peer, text string) {
	h.mu.Lock()
	responder := h.responder
	h.mu.Unlock()
	if reply := responder(from.identity, text); reply != "" {
		from.send(reply)
	}
}

// SetResponder replaces the automated responder. An empty reply sends
// nothing.
func (h *Handler) SetResponder(fn func(identity, text string) string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responder = fn
}

// broadcast sends text to every peer in group and returns how many got it.
func (h *Handler) broadcast(group map[*peer]struct{}, text string) int {
	h.mu.Lock()
	targets := make([]*peer, 0, len(group))
	for p := range group {
		targets = append(targets, p)
	}
	h.mu.Unlock()

	n := 0
	for _, p := range targets {
		if err := p.send(text); err == nil {
			n++
		}
	}
	return n
}

func (h *Handler) serveUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	reject := h.rejectUploads > 0
	if reject {
		h.rejectUploads--
	}
	h.mu.Unlock()
	if reject {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "upload rejected"})
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	identity := r.FormValue(h.identityParam)
	if identity == "" {
		identity = r.URL.Query().Get(h.identityParam)
	}

	h.mu.Lock()
	h.uploads = append(h.uploads, Upload{Identity: identity, FileName: hdr.Filename, Text: string(data)})
	h.mu.Unlock()

	h.broadcast(h.experts, NoteFrame(identity, string(data)))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Discharge note uploaded and system prompt updated."})
}

// RejectUploads makes the next n uploads fail with status 500.
func (h *Handler) RejectUploads(n int) {
	h.mu.Lock()
	h.rejectUploads = n
	h.mu.Unlock()
}

// Uploads returns the accepted uploads in order.
func (h *Handler) Uploads() []Upload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Upload(nil), h.uploads...)
}

// Connections returns the number of open websockets per endpoint kind.
func (h *Handler) Connections() (patients, experts, automated int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.patients), len(h.experts), len(h.bots)
}

// DropAll closes every open websocket without a close handshake.
func (h *Handler) DropAll() {
	h.mu.Lock()
	var all []*peer
	for _, group := range []map[*peer]struct{}{h.patients, h.experts, h.bots} {
		for p := range group {
			all = append(all, p)
		}
	}
	h.mu.Unlock()

	for _, p := range all {
		p.ws.UnderlyingConn().Close()
	}
}

// NoteFrame renders a note the way the server pushes it to experts.
func NoteFrame(owner, text string) string {
	return fmt.Sprintf("%s %s%s%s", conversation.NotePrefix, owner, conversation.NoteDelimiter, text)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Server is a Handler listening on a local test address.
type Server struct {
	*Handler
	HTTP *httptest.Server
}

// NewServer starts a server that is shut down when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	h := NewHandler(nil)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.DropAll()
		srv.Close()
	})
	return &Server{Handler: h, HTTP: srv}
}

// Config returns a configuration pointing at the server, with reconnect
// pacing disabled.
func (s *Server) Config() *config.Config {
	cfg := config.Default()
	cfg.Server.BaseURL = s.HTTP.URL
	cfg.Session.ReconnectInterval = 0
	return cfg
}
