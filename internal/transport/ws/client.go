package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"worldsync/internal/entity"
	"worldsync/internal/protocol"
)

// Client is one observer's connection to the authority. Outbound packets
// are queued and written by a goroutine; inbound packets land on Inbox for
// the frame loop.
type Client struct {
	conn    *websocket.Conn
	log     *log.Logger
	welcome protocol.WelcomeMsg

	out   chan []byte
	inbox chan protocol.Packet

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type DialOptions struct {
	PlayerName string
	PlayerID   entity.ID
	// InboxSize bounds the inbound queue. The reader blocks when it is full.
	InboxSize int
	OutSize   int
	Logger    *log.Logger
}

// Dial connects, performs the HELLO/WELCOME handshake and starts the reader
// and writer goroutines. The WELCOME view is delivered first on Inbox as a
// SPAWN_ENTITIES packet.
func Dial(ctx context.Context, url string, opts DialOptions) (*Client, error) {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	if opts.OutSize <= 0 {
		opts.OutSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      opts.PlayerName,
		PlayerID:        opts.PlayerID,
	}
	if err := writeJSON(conn, hello); err != nil {
		_ = conn.Close()
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.ProtocolVersion != protocol.Version {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: unexpected %s v%s", welcome.Type, welcome.ProtocolVersion)
	}
	_ = conn.SetReadDeadline(time.Time{})

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		log:     opts.Logger,
		welcome: welcome,
		out:     make(chan []byte, opts.OutSize),
		inbox:   make(chan protocol.Packet, opts.InboxSize),
		ctx:     cctx,
		cancel:  cancel,
	}
	if len(welcome.Entities) > 0 {
		c.inbox <- protocol.NewSpawnEntities(welcome.Entities...)
	}

	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

func (c *Client) SessionID() string { return c.welcome.SessionID }

// Inbox is closed when the connection ends.
func (c *Client) Inbox() <-chan protocol.Packet { return c.inbox }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

// Send queues p for the authority. It never blocks; it returns false when
// the connection is gone or the queue is full.
func (c *Client) Send(ctx context.Context, p protocol.Packet) bool {
	if c.ctx.Err() != nil {
		return false
	}
	b, err := protocol.Encode(p)
	if err != nil {
		c.log.Printf("ERROR encode %s: %v", p.PacketType(), err)
		return false
	}
	select {
	case c.out <- b:
		return true
	default:
		c.log.Printf("WARN outbound queue full, dropped %s", p.PacketType())
		return false
	}
}

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.cancel()
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Client) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.inbox)
	defer c.cancel()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		p, err := protocol.Decode(msg)
		if err != nil {
			c.log.Printf("WARN dropped inbound message: %v", err)
			continue
		}
		if e, ok := p.(*protocol.ErrorMsg); ok {
			c.log.Printf("WARN authority rejected %s: %s %s", e.RefType, e.Code, e.Message)
			continue
		}
		select {
		case c.inbox <- p:
		case <-c.ctx.Done():
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
