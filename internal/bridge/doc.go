// Package bridge connects Tickline Core to the MQTT broker.
//
// The bridge is the only place broker topics and engine types meet:
// it translates between wire messages on the tickline/ topic tree and
// the engine, rpc and filter packages, which know nothing about MQTT.
//
// # Message Flow
//
//	                 ┌──────────────────────────────┐
//	 action calls ──▶│ ActionListener ──▶ rpc.Table │
//	                 │                              │
//	 state topics ──▶│ StateMirror ──▶ engine.Store │
//	                 │                              │
//	 run events   ◀──│ RunPublisher ◀── engine      │
//	                 │                              │
//	 call results ◀──│ mqttResponder ◀── rpc.Table  │
//	                 └──────────────────────────────┘
//
// Inbound: remote peers publish CallRequest messages on
// tickline/action/call/{action}; sensors publish values on
// tickline/state/{key}. Outbound: run lifecycle events go to
// tickline/core/run/{script}/..., call results to
// tickline/action/result/{call_id}.
//
// # Correlation
//
// A caller that wants the result supplies call_id in the request and
// subscribes to tickline/action/result/{call_id} before publishing.
// Without a caller-supplied ID the engine's own call ID scopes the
// result topic, which only suits wildcard subscribers.
package bridge
