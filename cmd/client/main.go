package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"worldsync/internal/client"
	"worldsync/internal/config"
	"worldsync/internal/host/scene"
	"worldsync/internal/persistence/journal"
	"worldsync/internal/protocol"
	"worldsync/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to client.yaml (optional)")
		url        = flag.String("url", "", "authority ws url (overrides config)")
		name       = flag.String("name", "", "player name (overrides config)")
		demoEvery  = flag.Duration("demo_every", 2*time.Second, "interval between scripted local actions (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if u := strings.TrimSpace(*url); u != "" {
		cfg.AuthorityURL = u
	}
	if n := strings.TrimSpace(*name); n != "" {
		cfg.PlayerName = n
	}
	policy, err := cfg.DestroyPolicy()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var jw *journal.Writer
	if cfg.JournalDir != "" {
		jw = journal.NewWriter(cfg.JournalDir, "client-"+cfg.PlayerName)
		defer jw.Close()
	}

	// The runtime exists before the connection: HELLO carries the player
	// id it assigns.
	link := &lateSender{}
	var sender protocol.Sender = link
	if jw != nil {
		sender = journal.NewTeeSender(link, jw, logger)
	}
	inbox := make(chan protocol.Packet, cfg.InboxSize)
	world := scene.New()
	rt := client.New(client.Config{FrameRateHz: cfg.FrameRateHz, DefaultDestroy: policy}, world, sender, inbox, logger)

	conn, err := ws.Dial(ctx, cfg.AuthorityURL, ws.DialOptions{
		PlayerName: cfg.PlayerName,
		PlayerID:   rt.PlayerID(),
		InboxSize:  cfg.InboxSize,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer conn.Close()
	link.set(conn)
	logger.Printf("joined %s as %q session=%s player=%s", cfg.AuthorityURL, cfg.PlayerName, conn.SessionID(), rt.PlayerID())

	go func() {
		defer rt.Stop()
		for p := range conn.Inbox() {
			if jw != nil {
				if err := jw.WritePacket(journal.DirIn, conn.SessionID(), p); err != nil {
					logger.Printf("journal %s: %v", p.PacketType(), err)
				}
			}
			select {
			case inbox <- p:
			case <-ctx.Done():
				return
			}
		}
		logger.Printf("connection closed")
	}()

	if *demoEvery > 0 {
		go runDemo(ctx, rt, world, *demoEvery, logger)
	}

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		logger.Printf("run: %v", err)
	}
	logger.Printf("stopped after %d frames", rt.Frames())
}

// lateSender refuses packets until the connection is up.
type lateSender struct {
	c atomic.Pointer[ws.Client]
}

func (l *lateSender) set(c *ws.Client) { l.c.Store(c) }

func (l *lateSender) Send(ctx context.Context, p protocol.Packet) bool {
	c := l.c.Load()
	if c == nil {
		return false
	}
	return c.Send(ctx, p)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
