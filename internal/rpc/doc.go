// Package rpc provides remote action calls with typed arguments and
// tracked responses for Tickline Core.
//
// Actions are declared with named, typed arguments (scalars and
// arrays) and a response mode. Callers invoke an action through the
// Table, which assigns a call ID, validates arguments, dispatches the
// handler and tracks the pending call until the handler responds or
// the call times out.
//
// Call lifecycle:
//
//	Idle ──Invoke──▶ AwaitingResponse ──Respond──▶ Responded
//	                        │
//	                        └──deadline sweep──▶ TimedOut
//
// A response arriving after the sweep has removed the call is logged
// and dropped; the table keeps serving subsequent calls normally.
//
// # Key Types
//
//   - Action: Declared action (name, argument schema, response mode)
//   - Registry: Thread-safe action registry with argument validation
//   - Table: Pending-call tracker with deadline sweep
//   - Call: One in-flight invocation handed to the action handler
//   - Responder: Destination for results (MQTT, WebSocket, test double)
//
// # Response Modes
//
//   - none: fire-and-forget; the table acknowledges dispatch itself
//   - status: handler reports success or failure, no payload
//   - optional: payload returned only when the caller asks for it
//   - only: every response carries a payload
//
// # Usage
//
//	registry := rpc.NewRegistry()
//	err := registry.Register(&rpc.Action{
//	    Name:     "start_wash_cycle",
//	    Args:     []rpc.Arg{{Name: "cycle", Type: rpc.TypeString}},
//	    Response: rpc.ResponseStatus,
//	    Handler:  startWash,
//	})
//
//	table := rpc.NewTable(registry, 500*time.Millisecond, log)
//	table.Start(ctx)
//	callID, err := table.Invoke(ctx, "start_wash_cycle", args, responder, false)
package rpc
