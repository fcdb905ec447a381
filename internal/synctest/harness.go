// Package synctest drives a complete client on the in-memory scene through
// exported APIs only: local actions go through the scene, inbound packets
// through the runtime's frame step, and outbound packets land in a Recorder.
package synctest

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"

	"worldsync/internal/client"
	"worldsync/internal/entity"
	"worldsync/internal/host"
	"worldsync/internal/host/scene"
	"worldsync/internal/protocol"
)

// Recorder is a protocol.Sender that keeps every packet.
type Recorder struct {
	mu      sync.Mutex
	packets []protocol.Packet

	// Refuse makes Send report the packet as not accepted.
	Refuse bool
	// OnSend, when set, runs before the packet is recorded.
	OnSend func(ctx context.Context, p protocol.Packet)
}

func (r *Recorder) Send(ctx context.Context, p protocol.Packet) bool {
	if r.OnSend != nil {
		r.OnSend(ctx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Refuse {
		return false
	}
	r.packets = append(r.packets, p)
	return true
}

func (r *Recorder) Packets() []protocol.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Packet(nil), r.packets...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

func (r *Recorder) Count(typ string) int {
	n := 0
	for _, p := range r.Packets() {
		if p.PacketType() == typ {
			n++
		}
	}
	return n
}

// Last returns the most recent packet, or nil.
func (r *Recorder) Last() protocol.Packet {
	ps := r.Packets()
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = nil
}

type Harness struct {
	T     *testing.T
	Scene *scene.Scene
	Sent  *Recorder
	RT    *client.Runtime
	Logs  *bytes.Buffer
}

func New(t *testing.T) *Harness {
	return NewWithConfig(t, client.Config{FrameRateHz: 60})
}

func NewWithConfig(t *testing.T, cfg client.Config) *Harness {
	t.Helper()
	s := scene.New()
	rec := &Recorder{}
	logs := &bytes.Buffer{}
	rt := client.New(cfg, s, rec, nil, log.New(logs, "[client] ", 0))
	return &Harness{T: t, Scene: s, Sent: rec, RT: rt, Logs: logs}
}

func (h *Harness) Ctx() context.Context { return context.Background() }

// Bind gives obj an id as if it had been replicated earlier.
func (h *Harness) Bind(obj host.Object) entity.ID {
	return h.RT.IDs.GetOrCreate(obj)
}

// BindAs gives obj a known id.
func (h *Harness) BindAs(obj host.Object, id entity.ID) {
	h.RT.IDs.Assign(obj, id)
}

// Apply runs one frame with packets and fails the test on error.
func (h *Harness) Apply(packets ...protocol.Packet) {
	h.T.Helper()
	if err := h.RT.StepOnce(h.Ctx(), packets...); err != nil {
		h.T.Fatalf("apply: %v", err)
	}
}

// EndFrame runs a frame with nothing inbound, flushing deferred destroys.
func (h *Harness) EndFrame() {
	h.T.Helper()
	h.Apply()
}
