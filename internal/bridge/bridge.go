package bridge

import (
	"context"
	"fmt"

	"github.com/tealfork/tickline-core/internal/infrastructure/mqtt"
	"github.com/tealfork/tickline-core/internal/rpc"
)

// Logger is the subset of logging this package needs. A nil logger is
// replaced by a no-op implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broker is the MQTT surface the bridge depends on. *mqtt.Client
// satisfies it; tests substitute an in-memory fake.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Bridge connects the broker to the action engine: inbound action
// calls and state updates flow in, run lifecycle events and call
// results flow out.
type Bridge struct {
	broker  Broker
	actions *ActionListener
	states  *StateMirror
	logger  Logger
}

// New assembles a bridge. Either listener may be nil to disable that
// direction; table nil disables action calls, store nil disables the
// state mirror.
func New(broker Broker, table *rpc.Table, store StateStore, qos byte, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	b := &Bridge{
		broker: broker,
		logger: logger,
	}
	if table != nil {
		b.actions = NewActionListener(broker, table, qos, logger)
	}
	if store != nil {
		b.states = NewStateMirror(broker, store, qos, logger)
	}
	return b
}

// Start subscribes the inbound listeners. Safe to call once.
func (b *Bridge) Start(ctx context.Context) error {
	if b.actions != nil {
		if err := b.actions.Start(ctx); err != nil {
			return fmt.Errorf("bridge: starting action listener: %w", err)
		}
	}
	if b.states != nil {
		if err := b.states.Start(); err != nil {
			return fmt.Errorf("bridge: starting state mirror: %w", err)
		}
	}
	b.logger.Info("mqtt bridge started",
		"actions", b.actions != nil,
		"state_mirror", b.states != nil,
	)
	return nil
}

// FilterSource adapts the broker for filter pipelines, which accept
// plain function handlers rather than mqtt.MessageHandler.
type FilterSource struct {
	Broker Broker
}

// Subscribe forwards to the underlying broker.
func (f FilterSource) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return f.Broker.Subscribe(topic, qos, mqtt.MessageHandler(handler))
}
