// Package processors applies packets received from the authority to the
// local world. Every processor runs on the frame loop and holds the
// suppression guard for its packet type while it mutates the world, so the
// local side effects it causes are not reported back.
package processors

import (
	"context"
	"errors"
	"fmt"
	"log"

	"worldsync/internal/entities"
	"worldsync/internal/host"
	"worldsync/internal/identity"
	"worldsync/internal/protocol"
	"worldsync/internal/suppress"
)

var ErrWrongPacket = errors.New("packet routed to the wrong processor")

type Processor interface {
	Type() string
	Process(ctx context.Context, p protocol.Packet) error
}

// Deps is what the processors share with the rest of the client.
type Deps struct {
	World    host.World
	IDs      *identity.Registry
	Entities *entities.Registry
	Spawner  *entities.Spawner
	Guard    *suppress.Guard
	Logger   *log.Logger
}

func (d Deps) logger() *log.Logger {
	if d.Logger == nil {
		return log.Default()
	}
	return d.Logger
}

func wrongPacket(want string, p protocol.Packet) error {
	return fmt.Errorf("%w: %s processor got %T", ErrWrongPacket, want, p)
}

// Dispatcher routes packets to the processor registered for their type.
type Dispatcher struct {
	procs  map[string]Processor
	logger *log.Logger
}

func NewDispatcher(logger *log.Logger, procs ...Processor) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	d := &Dispatcher{procs: map[string]Processor{}, logger: logger}
	for _, p := range procs {
		d.Register(p)
	}
	return d
}

// Defaults builds the dispatcher with every inbound processor.
func Defaults(deps Deps) *Dispatcher {
	return NewDispatcher(deps.logger(),
		NewEntityDestroyed(deps),
		NewEntitySpawned(deps),
		NewPickupItem(deps),
		NewExosuitArmAction(deps),
	)
}

func (d *Dispatcher) Register(p Processor) { d.procs[p.Type()] = p }

// Dispatch processes p. Unknown packet types are logged and dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, p protocol.Packet) error {
	proc, ok := d.procs[p.PacketType()]
	if !ok {
		d.logger.Printf("no processor for %s, dropped", p.PacketType())
		return nil
	}
	return proc.Process(ctx, p)
}
