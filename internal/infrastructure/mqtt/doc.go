// Package mqtt provides MQTT client connectivity for Tickline Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Tickline uses MQTT as the message bus connecting the engine to remote
// peers: action calls arrive over the broker, run lifecycle events and
// filter outputs are published back, and shared state keys mirror
// retained topics. The broker (Mosquitto) decouples the engine from its
// peers.
//
//	Tickline Core ↔ MQTT Broker ↔ Remote Peers / Sensors
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all shared state updates
//	err = client.Subscribe(mqtt.Topics{}.AllStateValues(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Invoke a remote action
//	topic := mqtt.Topics{}.ActionCall("open_valve")
//	client.Publish(topic, []byte(`{"duration": 30}`), 1, false)
package mqtt
