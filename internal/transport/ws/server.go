// Package ws carries sync packets between clients and the authority over
// websockets.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"worldsync/internal/entity"
	"worldsync/internal/protocol"
)

const (
	writeWait    = 5 * time.Second
	readWait     = 60 * time.Second
	pingEvery    = 20 * time.Second
	sessionQueue = 256
)

// Recorder receives every packet the authority accepted.
type Recorder interface {
	RecordPacket(ctx context.Context, session string, p protocol.Packet)
}

// Recorders fans a packet out to several recorders.
type Recorders []Recorder

func (rs Recorders) RecordPacket(ctx context.Context, session string, p protocol.Packet) {
	for _, r := range rs {
		if r != nil {
			r.RecordPacket(ctx, session, p)
		}
	}
}

type session struct {
	id       string
	name     string
	playerID entity.ID
	out      chan []byte
}

// Server is the authority relay. It keeps the current view, answers HELLO
// with WELCOME, and rebroadcasts accepted packets to every other session.
type Server struct {
	log      *log.Logger
	view     *View
	recorder Recorder

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
}

func NewServer(rec Recorder, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		log:      logger,
		view:     NewView(),
		recorder: rec,
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) View() *View { return s.view }

func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.log.Printf("session %s joined as %q player=%s", sess.id, sess.name, sess.playerID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(pingEvery)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sess.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readWait))
		})

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.handle(ctx, sess, msg)
		}

		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		s.log.Printf("session %s left", sess.id)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}
	if strings.TrimSpace(hello.PlayerName) == "" {
		hello.PlayerName = "player"
	}

	sess := &session{
		id:       uuid.NewString(),
		name:     hello.PlayerName,
		playerID: hello.PlayerID,
		out:      make(chan []byte, sessionQueue),
	}

	// Snapshot and registration happen under one lock so the new session
	// sees every broadcast after its WELCOME and none before.
	s.mu.Lock()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Entities:        s.view.Snapshot(),
	}
	b, err := json.Marshal(welcome)
	if err != nil {
		s.mu.Unlock()
		return nil
	}
	sess.out <- b
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func (s *Server) handle(ctx context.Context, from *session, msg []byte) {
	p, err := protocol.Decode(msg)
	if err != nil {
		code := protocol.ErrProtoBadRequest
		if base, berr := protocol.DecodeBase(msg); berr == nil && base.ProtocolVersion != protocol.Version {
			code = protocol.ErrProtoVersion
		}
		s.reject(from, code, "", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out protocol.Packet
	switch m := p.(type) {
	case *protocol.EntitySpawnedByClient:
		if err := m.Entity.Validate(); err != nil {
			s.reject(from, protocol.ErrBadEntity, m.PacketType(), err)
			return
		}
		s.view.Put(m.Entity)
		out = protocol.NewSpawnEntities(m.Entity)
	case *protocol.PickupItem:
		if err := m.Entity.Validate(); err != nil {
			s.reject(from, protocol.ErrBadEntity, m.PacketType(), err)
			return
		}
		s.view.Put(m.Entity)
		out = m
	case *protocol.EntityDestroyed:
		if m.ID == entity.NoID {
			s.reject(from, protocol.ErrProtoBadRequest, m.PacketType(), errors.New("missing id"))
			return
		}
		s.view.Remove(m.ID)
		out = m
	case *protocol.ExosuitArmAction:
		out = m
	default:
		s.reject(from, protocol.ErrProtoBadRequest, p.PacketType(), fmt.Errorf("%s is not accepted from clients", p.PacketType()))
		return
	}

	if s.recorder != nil {
		s.recorder.RecordPacket(ctx, from.id, p)
	}
	s.broadcastLocked(from.id, out)
}

// broadcastLocked queues p for every session except the sender. A session
// whose queue is full misses the packet.
func (s *Server) broadcastLocked(except string, p protocol.Packet) {
	b, err := protocol.Encode(p)
	if err != nil {
		s.log.Printf("ERROR encode %s: %v", p.PacketType(), err)
		return
	}
	for id, sess := range s.sessions {
		if id == except {
			continue
		}
		select {
		case sess.out <- b:
		default:
			s.log.Printf("WARN session %s queue full, dropped %s", id, p.PacketType())
		}
	}
}

func (s *Server) reject(to *session, code, refType string, err error) {
	s.log.Printf("WARN session %s: rejected %s: %v", to.id, refType, err)
	b, merr := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         err.Error(),
		RefType:         refType,
	})
	if merr != nil {
		return
	}
	select {
	case to.out <- b:
	default:
	}
}

// Entities returns the current view, roots ordered by id.
func (s *Server) Entities() []entity.Entity { return s.view.Snapshot() }
