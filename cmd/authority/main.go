package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"worldsync/internal/config"
	"worldsync/internal/persistence/indexdb"
	"worldsync/internal/persistence/journal"
	"worldsync/internal/transport/observer"
	"worldsync/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to authority.yaml (optional)")
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "run without the sqlite entity index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[authority] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.LoadAuthority(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if a := strings.TrimSpace(*addr); a != "" {
		cfg.ListenAddr = a
	}
	if *disableDB {
		cfg.DisableDB = true
	}

	recorders := ws.Recorders{}
	var idx *indexdb.SQLiteIndex
	if !cfg.DisableDB {
		idx, err = indexdb.OpenSQLite(cfg.DBPath)
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		recorders = append(recorders, idx)
	}
	var jw *journal.Writer
	if cfg.JournalDir != "" {
		jw = journal.NewWriter(cfg.JournalDir, "packets")
		defer jw.Close()
		recorders = append(recorders, jw)
	}

	// Loopback-only debug feed of accepted packets.
	obs := observer.NewServer(nil, log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))
	recorders = append(recorders, obs)

	ctx, cancel := signalContext()
	defer cancel()

	relay := ws.NewServer(recorders, log.New(os.Stdout, "[relay] ", log.LstdFlags|log.Lmicroseconds))
	obs.SetSource(relay)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP worldsync_sessions Current number of connected clients.\n")
		fmt.Fprintf(rw, "# TYPE worldsync_sessions gauge\n")
		fmt.Fprintf(rw, "worldsync_sessions %d\n", relay.Sessions())

		fmt.Fprintf(rw, "# HELP worldsync_view_roots Entity trees in the authority view.\n")
		fmt.Fprintf(rw, "# TYPE worldsync_view_roots gauge\n")
		fmt.Fprintf(rw, "worldsync_view_roots %d\n", relay.View().Len())

		fmt.Fprintf(rw, "# HELP worldsync_observers Connected observer feeds.\n")
		fmt.Fprintf(rw, "# TYPE worldsync_observers gauge\n")
		fmt.Fprintf(rw, "worldsync_observers %d\n", obs.Subscribers())

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP worldsync_index_queue_depth Pending index writes.\n")
			fmt.Fprintf(rw, "# TYPE worldsync_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "worldsync_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP worldsync_index_dropped_total Index writes dropped on a full queue.\n")
			fmt.Fprintf(rw, "# TYPE worldsync_index_dropped_total counter\n")
			fmt.Fprintf(rw, "worldsync_index_dropped_total %d\n", st.DropTotal)
			if n, err := idx.Count(r.Context()); err == nil {
				fmt.Fprintf(rw, "# HELP worldsync_index_entities Live entities in the index.\n")
				fmt.Fprintf(rw, "# TYPE worldsync_index_entities gauge\n")
				fmt.Fprintf(rw, "worldsync_index_entities %d\n", n)
			}
		}
	})
	mux.HandleFunc("/v1/sync", relay.Handler())
	mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (index=%v journal=%q)", cfg.ListenAddr, idx != nil, cfg.JournalDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
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
