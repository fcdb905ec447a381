package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"worldsync/internal/entity"
	"worldsync/internal/persistence/journal"
	"worldsync/internal/protocol"
)

func main() {
	var (
		dir    = flag.String("dir", "./data/authority", "journal directory")
		prefix = flag.String("prefix", "packets", "journal file prefix")
		strict = flag.Bool("strict", false, "treat parents the journal never introduced as errors")
	)
	flag.Parse()

	files, err := journal.Files(*dir, *prefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journals:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *dir)
		os.Exit(1)
	}

	c := newChecker(*strict)
	for _, path := range files {
		if err := journal.ReadFile(path, c.check); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	types := make([]string, 0, len(c.counts))
	for t := range c.counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("%-26s %d\n", t, c.counts[t])
	}
	fmt.Printf("live=%d dangling=%d invalid=%d\n", len(c.live), c.dangling, len(c.errs))
	for _, e := range c.errs {
		fmt.Fprintln(os.Stderr, "  ", e)
	}
	if len(c.errs) > 0 {
		os.Exit(1)
	}
	fmt.Println("replay ok")
}

// checker rebuilds the set of live ids from the journal and validates every
// entity tree against it.
type checker struct {
	strict   bool
	live     map[entity.ID]bool
	counts   map[string]int
	dangling int
	errs     []error
}

func newChecker(strict bool) *checker {
	return &checker{strict: strict, live: map[entity.ID]bool{}, counts: map[string]int{}}
}

func (c *checker) check(rec journal.Record) error {
	p, err := rec.Decode()
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s %s: %w", rec.At.Format("15:04:05.000"), rec.Type, err))
		return nil
	}
	c.counts[p.PacketType()]++

	switch m := p.(type) {
	case *protocol.EntitySpawnedByClient:
		c.tree(rec, m.Entity)
	case *protocol.SpawnEntities:
		for _, e := range m.Entities {
			c.tree(rec, e)
		}
	case *protocol.PickupItem:
		c.tree(rec, m.Entity)
	case *protocol.EntityDestroyed:
		delete(c.live, m.ID)
	}
	return nil
}

func (c *checker) tree(rec journal.Record, e entity.Entity) {
	err := entity.ValidateTree(e, func(id entity.ID) bool { return c.live[id] })
	if err != nil && !c.strict && e.Validate() == nil && errors.Is(err, entity.ErrInvalidEntity) {
		// Containers and planters are never journaled; a dangling parent is
		// expected unless -strict is set.
		c.dangling++
		err = nil
	}
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s session=%s: %w", rec.At.Format("15:04:05.000"), rec.Session, err))
		return
	}
	for _, id := range entity.IDs(e) {
		c.live[id] = true
	}
}
