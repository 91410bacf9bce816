// Grounded on main.go's boot sequence shape (load config, spawn a root
// actor, run, shut down on signal) — generalized from pongo's single
// RoomManagerActor + HTTP server to meshrt's bare scheduler: this binary
// boots a Runtime, spawns a two-actor bounce exchange, and shuts down
// after two seconds or when interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snowdamiz/meshrt/actor"
	"github.com/snowdamiz/meshrt/internal/rtconfig"
)

// setPeer tells a freshly spawned bounceActor who to forward to. Passed as
// a message rather than a constructor field since the peer's PID isn't
// known until after both actors are spawned, and nothing but the actor's
// own goroutine may touch its state.
type setPeer struct {
	Peer actor.PID
}

// bounceActor decrements whatever int it receives and forwards it to
// peer, until the count reaches zero — a minimal two-actor exchange used
// to exercise Spawn/Send/ReductionCheck end to end.
type bounceActor struct {
	name  string
	peer  actor.PID
	count int
}

func (b *bounceActor) Receive(ctx actor.ActorContext) {
	if ctx.Message().TypeTag() == actor.TypeTag(setPeer{}) {
		var sp setPeer
		if ctx.Decode(&sp) == nil {
			b.peer = sp.Peer
		}
		return
	}

	var n int
	if ctx.Decode(&n) != nil {
		return
	}
	b.count++
	ctx.ReductionCheck()
	if n > 0 {
		ctx.Send(b.peer, n-1)
	} else {
		fmt.Printf("meshrtd: %s done, handled %d messages\n", b.name, b.count)
	}
}

func main() {
	cfg := rtconfig.FromEnv()
	fmt.Printf("Configuration loaded: workers=%d reductions=%d gc_threshold=%d timer_resolution=%s\n",
		cfg.Workers, cfg.DefaultReductions, cfg.GCThresholdBytes, cfg.TimerResolution)

	rt := actor.NewRuntime(actor.Config{
		Workers:           cfg.Workers,
		DefaultReductions: cfg.DefaultReductions,
		GCThresholdBytes:  cfg.GCThresholdBytes,
		TimerResolution:   cfg.TimerResolution,
	})
	fmt.Println("Runtime booted.")

	pingPID := rt.Spawn(func() actor.Actor { return &bounceActor{name: "ping"} }, actor.PriorityNormal)
	pongPID := rt.Spawn(func() actor.Actor { return &bounceActor{name: "pong"} }, actor.PriorityNormal)
	fmt.Printf("Spawned ping=%s pong=%s\n", pingPID, pongPID)

	rt.SendExternal(pingPID, setPeer{Peer: pongPID})
	rt.SendExternal(pongPID, setPeer{Peer: pingPID})
	rt.SendExternal(pingPID, 10)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("Signal received, shutting down.")
	case <-time.After(2 * time.Second):
		fmt.Println("Demo complete, shutting down.")
	}

	if err := rt.Shutdown(5 * time.Second); err != nil {
		fmt.Println("Runtime shutdown error:", err)
		os.Exit(1)
	}
	fmt.Println("Runtime shutdown complete.")
}
