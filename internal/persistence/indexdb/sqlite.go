// Package indexdb keeps the authority's queryable index of live and
// destroyed entities. Writes are queued and applied by one goroutine; the
// packet journal remains the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"worldsync/internal/entity"
	"worldsync/internal/protocol"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqUpsert reqKind = iota + 1
	reqDestroy
	reqFlush
)

type req struct {
	kind reqKind

	rows []entityRow
	id   entity.ID
	at   time.Time
	done chan struct{}
}

type entityRow struct {
	ID       string
	Kind     string
	ClassID  string
	TechType string
	ParentID string
	JSON     string
}

// Stats describes the write queue.
type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTotal     uint64
}

var ErrClosed = errors.New("index closed")

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			class_id TEXT NOT NULL,
			tech_type TEXT NOT NULL,
			parent_id TEXT,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent_id);`,
		`CREATE TABLE IF NOT EXISTS destroyed (
			id TEXT PRIMARY KEY,
			at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropped.Load(),
	}
}

// RecordSpawn indexes e and every descendant.
func (s *SQLiteIndex) RecordSpawn(e entity.Entity) {
	s.enqueue(req{kind: reqUpsert, rows: rowsFor(e), at: time.Now()})
}

// RecordPickup re-indexes an entity that moved into an inventory.
func (s *SQLiteIndex) RecordPickup(e entity.Entity) {
	s.enqueue(req{kind: reqUpsert, rows: rowsFor(e), at: time.Now()})
}

// RecordDestroy removes id and its descendants and remembers the deletion.
func (s *SQLiteIndex) RecordDestroy(id entity.ID) {
	s.enqueue(req{kind: reqDestroy, id: id, at: time.Now()})
}

// RecordPacket indexes the entity changes an accepted packet carries.
func (s *SQLiteIndex) RecordPacket(ctx context.Context, session string, p protocol.Packet) {
	switch m := p.(type) {
	case *protocol.EntitySpawnedByClient:
		s.RecordSpawn(m.Entity)
	case *protocol.SpawnEntities:
		for _, e := range m.Entities {
			s.RecordSpawn(e)
		}
	case *protocol.PickupItem:
		s.RecordPickup(m.Entity)
	case *protocol.EntityDestroyed:
		s.RecordDestroy(m.ID)
	}
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; the journal still has the packet.
		s.dropped.Add(1)
	}
}

// Flush blocks until every write queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lookup returns the indexed record for id. Children are indexed as rows of
// their own and are not included.
func (s *SQLiteIndex) Lookup(ctx context.Context, id entity.ID) (entity.Entity, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM entities WHERE id = ?`, id.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Entity{}, false, nil
	}
	if err != nil {
		return entity.Entity{}, false, err
	}
	var e entity.Entity
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return entity.Entity{}, false, fmt.Errorf("decode %s: %w", id, err)
	}
	return e, true, nil
}

// Destroyed reports whether id was destroyed.
func (s *SQLiteIndex) Destroyed(ctx context.Context, id entity.ID) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM destroyed WHERE id = ?`, id.String()).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of live indexed entities.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, err
}

func rowsFor(root entity.Entity) []entityRow {
	var rows []entityRow
	entity.Walk(root, func(e entity.Entity) bool {
		flat := e
		flat.Children = nil
		b, err := json.Marshal(flat)
		if err != nil {
			return true
		}
		parent := ""
		if e.HasParent() {
			parent = e.ParentID.String()
		}
		rows = append(rows, entityRow{
			ID:       e.ID.String(),
			Kind:     e.Kind.String(),
			ClassID:  e.ClassID,
			TechType: string(e.TechType),
			ParentID: parent,
			JSON:     string(b),
		})
		return true
	})
	return rows
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsert, _ := s.db.Prepare(`INSERT OR REPLACE INTO entities(id,kind,class_id,tech_type,parent_id,json,updated_at) VALUES(?,?,?,?,NULLIF(?,''),?,?)`)
	deleteTree, _ := s.db.Prepare(`WITH RECURSIVE tree(id) AS (
			SELECT ?
			UNION ALL
			SELECT e.id FROM entities e JOIN tree t ON e.parent_id = t.id
		)
		DELETE FROM entities WHERE id IN (SELECT id FROM tree)`)
	markDestroyed, _ := s.db.Prepare(`INSERT OR REPLACE INTO destroyed(id,at) VALUES(?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsert, deleteTree, markDestroyed} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// Readers share the single connection, so an idle queue always commits.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		at := r.at.UTC().Format(time.RFC3339Nano)
		switch r.kind {
		case reqUpsert:
			if upsert == nil {
				break
			}
			for _, row := range r.rows {
				if _, err := tx.Stmt(upsert).Exec(row.ID, row.Kind, row.ClassID, row.TechType, row.ParentID, row.JSON, at); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqDestroy:
			if deleteTree == nil || markDestroyed == nil {
				break
			}
			if _, err := tx.Stmt(deleteTree).Exec(r.id.String()); err != nil {
				rollback()
				continue
			}
			if _, err := tx.Stmt(markDestroyed).Exec(r.id.String(), at); err != nil {
				rollback()
				continue
			}
			opCount += 2
		}
		flushIfNeeded()
	}

	commit()
}
