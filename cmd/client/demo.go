package main

import (
	"context"
	"log"
	"time"

	"worldsync/internal/client"
	"worldsync/internal/entity"
	"worldsync/internal/host/scene"
)

// runDemo plays a fixed loop of local actions so two clients against one
// authority show replication both ways: drop, pick up, place, destroy.
func runDemo(ctx context.Context, rt *client.Runtime, world *scene.Scene, every time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var (
		step   int
		knife  *scene.Item
		figure *scene.Node
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n := step
		step++
		err := rt.Do(ctx, func(ctx context.Context) {
			at := entity.Vec3{float64(n % 7), 0, float64(n % 5)}
			switch n % 4 {
			case 0:
				knife = world.NewItem("knife", "class-knife", "KNIFE")
				world.Drop(ctx, knife, at, nil)
			case 1:
				if knife != nil && knife.Alive() {
					world.Pickup(ctx, knife, nil)
				}
			case 2:
				figure = world.NewNode("figure", "class-figure", "FIGURE")
				world.Place(ctx, figure, at, nil)
			case 3:
				if figure != nil && figure.Alive() {
					world.RequestDestroy(ctx, figure)
				}
			}
		})
		if err != nil {
			return
		}
		if n%4 == 3 {
			logger.Printf("demo cycle %d done", n/4)
		}
	}
}
