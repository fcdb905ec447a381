package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"worldsync/internal/protocol"
)

// Files lists the journal files for prefix under dir, oldest first.
func Files(dir, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFile calls fn for every record in path, in order. It stops at the
// first error fn returns.
func ReadFile(path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}

// TeeSender journals every packet the wrapped sender accepts.
type TeeSender struct {
	next   protocol.Sender
	w      *Writer
	logger *log.Logger
}

func NewTeeSender(next protocol.Sender, w *Writer, logger *log.Logger) *TeeSender {
	if logger == nil {
		logger = log.Default()
	}
	return &TeeSender{next: next, w: w, logger: logger}
}

func (t *TeeSender) Send(ctx context.Context, p protocol.Packet) bool {
	if !t.next.Send(ctx, p) {
		return false
	}
	if err := t.w.WritePacket(DirOut, "", p); err != nil {
		t.logger.Printf("journal %s: %v", p.PacketType(), err)
	}
	return true
}
