// Package engine provides the action-graph execution engine for
// Tickline Core.
//
// Scripts are named, immutable trees of action descriptors (sequence,
// if, while, repeat, delay, wait-until, script calls, host handlers).
// Each invocation creates a Run with its own argument bindings and a
// continuation chain that records position without capturing closures;
// runs advance cooperatively on a single-goroutine tick loop and
// suspend by returning control to it.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                    Loop (loop.go)                        │
//	│  Single goroutine: submitted closures + tick handlers    │
//	│        │                                                 │
//	│        ▼                                                 │
//	│  ┌──────────────────────────────────────────────────┐   │
//	│  │  Engine (engine.go)                               │   │
//	│  │  scripts / states / live runs / parked FIFO       │   │
//	│  │  count-based polling interest                     │   │
//	│  └──────────────────────────────────────────────────┘   │
//	│        │                                                 │
//	│        ▼                                                 │
//	│  ┌──────────────┐  ┌──────────────┐  ┌─────────────┐   │
//	│  │     Run      │  │ continuation │  │ Repository  │   │
//	│  │   (run.go)   │─▶│    chain     │  │ (history)   │   │
//	│  └──────────────┘  └──────────────┘  └─────────────┘   │
//	└─────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Descriptor: Immutable action-graph node, shared by all runs
//   - Run: One live execution with isolated argument bindings
//   - Script: Named graph plus concurrency mode (single, restart,
//     queued, parallel)
//   - Loop: Cooperative single-goroutine scheduler
//   - Engine: Script registry, run lifecycle, wait queues
//
// # Concurrency Model
//
// All run state is confined to the loop goroutine. External callers
// (API, MQTT) use the Engine's public methods, which submit work to
// the loop and wait for a reply. Handlers execute on the loop
// goroutine and must not block; long waits are expressed as Delay or
// WaitUntil nodes, which suspend the run instead of the goroutine.
//
// # Usage
//
//	loop := engine.NewLoop(5 * time.Millisecond)
//	eng := engine.New(loop, repo, hub, events, log)
//
//	err := eng.Register(&engine.Script{
//	    Name: "greenhouse_vent",
//	    Mode: engine.ModeRestart,
//	    Root: engine.Sequence("",
//	        engine.ServiceCall("open_vent", openVent),
//	        engine.Delay("vent_hold", 30*time.Second),
//	        engine.ServiceCall("close_vent", closeVent),
//	    ),
//	})
//
//	err = eng.Start(ctx, cfg.Engine.OnBoot)
//	runID, err := eng.Execute(ctx, "greenhouse_vent", nil, "api")
package engine
