package http

import (
	"net/http"
	"path"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/chzchzchz/rxdsp/rxdsp"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SinkServer fans each demodulator output stream out to websocket clients at
// /ws/<stream>. Hubs outlive chain restarts so clients stay connected while
// the pipeline behind a stream is rebuilt.
type SinkServer struct {
	mu   sync.Mutex
	hubs map[string]*hub
}

func NewSinkServer() *SinkServer {
	return &SinkServer{hubs: make(map[string]*hub)}
}

// AddOutput attaches a stream source to its hub and pumps it until the source
// ends or the stream is reset.
func (s *SinkServer) AddOutput(name string, read rxdsp.ReadFunc) {
	h := s.hub(name)
	h.attach(read)
}

// Reset detaches every pump; connected clients go quiet until the next
// AddOutput.
func (s *SinkServer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hubs {
		h.detach()
	}
}

func (s *SinkServer) hub(name string) *hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[name]
	if !ok {
		h = &hub{name: name, conns: make(map[*websocket.Conn]struct{})}
		s.hubs[name] = h
	}
	return h
}

func (s *SinkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Subscribing ahead of the stream is fine; the hub stays quiet until a
	// chain attaches a source.
	h := s.hub(path.Base(r.URL.Path))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade", "stream", h.name, "err", err)
		return
	}
	h.add(conn)
	// Clients never send payload; the read loop only notices the close.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *SinkServer) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws/", s)
	return http.ListenAndServe(addr, mux)
}

type hub struct {
	name string

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	stop  chan struct{}
}

func (h *hub) attach(read rxdsp.ReadFunc) {
	h.mu.Lock()
	if h.stop != nil {
		close(h.stop)
	}
	stop := make(chan struct{})
	h.stop = stop
	h.mu.Unlock()
	go h.pump(read, stop)
}

func (h *hub) detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
}

func (h *hub) pump(read rxdsp.ReadFunc, stop chan struct{}) {
	for {
		b := read()
		if b == nil {
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		h.broadcast(b)
	}
}

func (h *hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		conn.Close()
		delete(h.conns, conn)
	}
}
