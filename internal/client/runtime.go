// Package client wires the sync core into one client's frame loop.
package client

import (
	"context"
	"errors"
	"log"
	"time"

	"worldsync/internal/entities"
	"worldsync/internal/entity"
	"worldsync/internal/hooks"
	"worldsync/internal/host"
	"worldsync/internal/identity"
	"worldsync/internal/items"
	"worldsync/internal/metadata"
	"worldsync/internal/processors"
	"worldsync/internal/protocol"
	"worldsync/internal/snapshot"
	"worldsync/internal/suppress"
)

// World is the engine surface the runtime drives: the host world plus the
// end of frame and the event subscription.
type World interface {
	host.World
	EndFrame(ctx context.Context)
	Subscribe(ev host.Events)
}

type Config struct {
	FrameRateHz int
	// DefaultDestroy is the removal policy for objects without a special
	// destroy path.
	DefaultDestroy entities.DestroyPolicy
}

type Runtime struct {
	cfg    Config
	logger *log.Logger

	World      World
	IDs        *identity.Registry
	Metadata   *metadata.Registry
	Builder    *snapshot.Builder
	Guard      *suppress.Guard
	Entities   *entities.Registry
	Spawner    *entities.Spawner
	Items      *items.Items
	Bus        *hooks.Bus
	Dispatcher *processors.Dispatcher

	inbox   <-chan protocol.Packet
	actions chan func(ctx context.Context)
	stop    chan struct{}

	playerID entity.ID
	frames   uint64
}

func New(cfg Config, world World, sender protocol.Sender, inbox <-chan protocol.Packet, logger *log.Logger) *Runtime {
	if cfg.FrameRateHz <= 0 {
		cfg.FrameRateHz = 30
	}
	if logger == nil {
		logger = log.Default()
	}
	prefixed := func(p string) *log.Logger {
		return log.New(logger.Writer(), logger.Prefix()+p, logger.Flags())
	}

	r := &Runtime{
		cfg:      cfg,
		logger:   logger,
		World:    world,
		IDs:      identity.NewRegistry(),
		Metadata: metadata.Defaults(),
		Guard:    suppress.NewGuard(),
		Entities: entities.NewRegistry(),
		inbox:    inbox,
		actions:  make(chan func(ctx context.Context), 64),
		stop:     make(chan struct{}),
	}
	r.Builder = snapshot.NewBuilder(r.IDs, r.Metadata)
	r.Spawner = entities.NewSpawner(world, r.IDs, r.Entities, prefixed("[spawn] "))
	r.Items = items.New(sender, world, r.IDs, r.Entities, r.Builder, prefixed("[items] "))
	r.Bus = hooks.NewBus(r.Guard, r.IDs, r.Items, r.Spawner, prefixed("[hooks] "))

	destroyed := processors.NewEntityDestroyed(r.deps(prefixed))
	destroyed.DefaultPolicy = cfg.DefaultDestroy
	r.Dispatcher = processors.Defaults(r.deps(prefixed))
	r.Dispatcher.Register(destroyed)

	r.playerID = r.IDs.GetOrCreate(world.Player())
	world.Subscribe(r.Bus)
	return r
}

func (r *Runtime) deps(prefixed func(string) *log.Logger) processors.Deps {
	return processors.Deps{
		World:    r.World,
		IDs:      r.IDs,
		Entities: r.Entities,
		Spawner:  r.Spawner,
		Guard:    r.Guard,
		Logger:   prefixed("[processors] "),
	}
}

// PlayerID is the id of the local player, created when the runtime starts.
func (r *Runtime) PlayerID() entity.ID { return r.playerID }

func (r *Runtime) Frames() uint64 { return r.frames }

// Do schedules fn on the frame loop. Local simulation actions must run there.
func (r *Runtime) Do(ctx context.Context, fn func(ctx context.Context)) error {
	select {
	case r.actions <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends Run after the current frame.
func (r *Runtime) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

// Run drives frames at the configured rate until ctx is done or Stop is
// called. Packets and actions that arrive between ticks are applied on the
// next tick.
func (r *Runtime) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(r.cfg.FrameRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingPackets []protocol.Packet
	var pendingActions []func(ctx context.Context)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case p, ok := <-r.inbox:
			if !ok {
				r.inbox = nil
				continue
			}
			pendingPackets = append(pendingPackets, p)
		case fn := <-r.actions:
			pendingActions = append(pendingActions, fn)
		case <-ticker.C:
			r.step(ctx, pendingPackets, pendingActions)
			pendingPackets = pendingPackets[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

// StepOnce runs one frame with the given packets and no local actions.
func (r *Runtime) StepOnce(ctx context.Context, packets ...protocol.Packet) error {
	return r.step(ctx, packets, nil)
}

// step applies inbound packets, then local actions, then the host's end of
// frame. A failing packet is logged and does not stop the frame.
func (r *Runtime) step(ctx context.Context, packets []protocol.Packet, actions []func(ctx context.Context)) error {
	ctx = suppress.WithGuard(ctx, r.Guard)
	var errs []error
	for _, p := range packets {
		if err := r.Dispatcher.Dispatch(ctx, p); err != nil {
			r.logger.Printf("apply %s: %v", p.PacketType(), err)
			errs = append(errs, err)
		}
	}
	for _, fn := range actions {
		fn(ctx)
	}
	r.World.EndFrame(ctx)
	r.frames++
	return errors.Join(errs...)
}
