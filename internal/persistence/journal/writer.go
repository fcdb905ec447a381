// Package journal keeps a compressed JSONL record of the packets a process
// sent and received, one file per hour.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"worldsync/internal/protocol"
)

type Direction string

const (
	DirIn  Direction = "in"
	DirOut Direction = "out"
)

type Record struct {
	At      time.Time       `json:"at"`
	Dir     Direction       `json:"dir"`
	Session string          `json:"session,omitempty"`
	Type    string          `json:"type"`
	Packet  json.RawMessage `json:"packet"`
}

// Decode parses the journaled packet.
func (r Record) Decode() (protocol.Packet, error) {
	return protocol.Decode(r.Packet)
}

// Writer appends records to <dir>/<prefix>-<yyyy-mm-dd-hh>.jsonl.zst and
// rotates on the hour. It is safe for concurrent use.
type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// SetClock replaces the clock used for timestamps and rotation.
func (w *Writer) SetClock(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// WritePacket journals p.
func (w *Writer) WritePacket(dir Direction, session string, p protocol.Packet) error {
	b, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	return w.Write(Record{Dir: dir, Session: session, Type: p.PacketType(), Packet: b})
}

// RecordPacket journals an inbound packet from session, dropping write
// errors.
func (w *Writer) RecordPacket(ctx context.Context, session string, p protocol.Packet) {
	_ = w.WritePacket(DirIn, session, p)
}

// Write appends rec, stamping it with the writer's clock when At is zero.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	if rec.At.IsZero() {
		rec.At = now
	}
	hour := now.Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}
