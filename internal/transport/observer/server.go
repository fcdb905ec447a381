// Package observer serves a read-only, loopback-only feed of the packets the
// authority accepts, for debugging tools and dashboards.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"worldsync/internal/entity"
	"worldsync/internal/protocol"
)

const Version = "1"

// Source is the authority state the bootstrap endpoint reports.
type Source interface {
	Sessions() int
	Entities() []entity.Entity
}

type BootstrapResponse struct {
	ProtocolVersion string          `json:"protocol_version"`
	SyncVersion     string          `json:"sync_version"`
	Sessions        int             `json:"sessions"`
	Entities        []entity.Entity `json:"entities"`
}

// SubscribeMsg opens a feed or changes its filter. An empty Types list
// streams every packet type.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Types           []string `json:"types,omitempty"`
}

// PacketMsg is one relayed packet.
type PacketMsg struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	Session string          `json:"session"`
	Packet  json.RawMessage `json:"packet"`
}

type subscriber struct {
	out    chan []byte
	mu     sync.Mutex
	filter map[string]bool
}

func (s *subscriber) setFilter(types []string) {
	f := map[string]bool{}
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			f[t] = true
		}
	}
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

func (s *subscriber) wants(typ string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filter) == 0 || s.filter[typ]
}

type Server struct {
	src Source
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	seq      atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewServer(src Source, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		src:  src,
		log:  logger,
		subs: map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// SetSource sets the state reported by the bootstrap endpoint.
func (s *Server) SetSource(src Source) { s.src = src }

func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// RecordPacket fans an accepted packet out to every observer that wants
// it. Slow observers miss packets rather than stall the relay.
func (s *Server) RecordPacket(ctx context.Context, session string, p protocol.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	raw, err := protocol.Encode(p)
	if err != nil {
		return
	}
	b, err := json.Marshal(PacketMsg{Type: "PACKET", Seq: s.seq.Add(1), Session: session, Packet: raw})
	if err != nil {
		return
	}
	for _, sub := range s.subs {
		if !sub.wants(p.PacketType()) {
			continue
		}
		select {
		case sub.out <- b:
		default:
		}
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := BootstrapResponse{
			ProtocolVersion: Version,
			SyncVersion:     protocol.Version,
			Entities:        []entity.Entity{},
		}
		if s.src != nil {
			resp.Sessions = s.src.Sessions()
			resp.Entities = s.src.Entities()
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		subr := &subscriber{out: make(chan []byte, 1024)}
		subr.setFilter(sub.Types)
		s.mu.Lock()
		s.subs[sid] = subr
		s.mu.Unlock()
		s.log.Printf("observer %s subscribed types=%v", sid, sub.Types)
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-subr.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				subr.setFilter(sub.Types)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (SubscribeMsg, bool) {
	var sub SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	return sub, sub.Type == "SUBSCRIBE" && sub.ProtocolVersion == Version
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
