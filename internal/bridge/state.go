package bridge

import (
	"encoding/json"
	"strings"

	"github.com/tealfork/tickline-core/internal/infrastructure/mqtt"
)

// StateStore is the write surface of the engine's shared state store.
type StateStore interface {
	Set(key string, value any)
}

// StateMirror subscribes to the state topic tree and mirrors retained
// values into the engine's state store, keyed by the topic path below
// the prefix. Script conditions evaluate against the store, so sensor
// publishes become visible to wait_until and while steps on the next
// tick.
type StateMirror struct {
	broker Broker
	store  StateStore
	qos    byte
	logger Logger
}

// NewStateMirror creates a mirror. Call Start to subscribe.
func NewStateMirror(broker Broker, store StateStore, qos byte, logger Logger) *StateMirror {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StateMirror{
		broker: broker,
		store:  store,
		qos:    qos,
		logger: logger,
	}
}

// Start subscribes to tickline/state/#.
func (m *StateMirror) Start() error {
	return m.broker.Subscribe(mqtt.Topics{}.AllStateValues(), m.qos, m.handleState)
}

// handleState stores one state update. JSON payloads keep their
// decoded shape; anything unparseable is stored as a raw string.
func (m *StateMirror) handleState(topic string, payload []byte) error {
	key := strings.TrimPrefix(topic, mqtt.TopicPrefixState+"/")
	if key == "" || key == topic {
		return nil
	}

	m.store.Set(key, decodeStateValue(payload))
	m.logger.Debug("state mirrored", "key", key)
	return nil
}

// decodeStateValue parses a state payload. "true"/"21.5"/objects come
// back as their JSON types; bare words like "on" fall back to strings.
func decodeStateValue(payload []byte) any {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return string(payload)
	}
	return value
}
