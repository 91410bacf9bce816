// Grounded on pongoClient/main.go's terminal client: clear the screen,
// print what arrived, loop until interrupted. meshrt-top has no server
// to dial, so it boots its own Runtime, spawns a synthetic load of
// bounce actors to keep the scheduler busy, and renders Runtime.Stats()
// on every tick instead of a websocket frame.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/lguibr/asciiring/helpers"

	"github.com/snowdamiz/meshrt/actor"
	"github.com/snowdamiz/meshrt/internal/rtconfig"
)

// churnActor keeps a trickle of work moving through the scheduler: for
// every tick it receives, it consumes one reduction and sends itself the
// next tick, so the dashboard has non-zero queue depth to show instead of
// a runtime sitting idle.
type churnActor struct {
	self actor.PID
	n    int
}

func (c *churnActor) Receive(ctx actor.ActorContext) {
	if ctx.Message().TypeTag() == actor.TypeTag(selfAssign{}) {
		var sa selfAssign
		if ctx.Decode(&sa) == nil {
			c.self = sa.Self
			ctx.Send(c.self, struct{}{})
		}
		return
	}

	c.n++
	ctx.ReductionCheck()
	ctx.Send(c.self, struct{}{})
}

func render(cfg rtconfig.Config, stats actor.Stats) {
	helpers.ClearScreen()
	fmt.Println("meshrt-top — scheduler snapshot")
	fmt.Printf("workers=%d reductions=%d gc_threshold=%d timer_resolution=%s\n\n",
		cfg.Workers, cfg.DefaultReductions, cfg.GCThresholdBytes, cfg.TimerResolution)
	fmt.Printf("processes: %d\n", stats.Processes)
	fmt.Printf("global queue: %d\n", stats.GlobalLen)
	for _, w := range stats.Workers {
		fmt.Printf("  worker %2d: queue=%d\n", w.ID, w.QueueLen)
	}
}

func main() {
	cfg := rtconfig.FromEnv()
	rt := actor.NewRuntime(actor.Config{
		Workers:           cfg.Workers,
		DefaultReductions: cfg.DefaultReductions,
		GCThresholdBytes:  cfg.GCThresholdBytes,
		TimerResolution:   cfg.TimerResolution,
	})

	const churners = 64
	for i := 0; i < churners; i++ {
		pid := rt.Spawn(func() actor.Actor { return &churnActor{} }, actor.PriorityNormal)
		rt.SendExternal(pid, selfAssign{Self: pid})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			_ = rt.Shutdown(2 * time.Second)
			return
		case <-ticker.C:
			render(cfg, rt.Stats())
		}
	}
}

// selfAssign hands a churnActor its own PID, mirroring cmd/meshrtd's
// setPeer handshake: nothing but the actor's own goroutine may set its
// state, and the PID isn't known until after Spawn returns.
type selfAssign struct {
	Self actor.PID
}
