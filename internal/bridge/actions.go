package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tealfork/tickline-core/internal/infrastructure/mqtt"
	"github.com/tealfork/tickline-core/internal/rpc"
)

// ActionListener subscribes to the action call tree and dispatches
// requests into the rpc call table. Results travel back over the
// broker on the per-call result topic.
type ActionListener struct {
	broker Broker
	table  *rpc.Table
	qos    byte
	logger Logger
}

// NewActionListener creates a listener. Call Start to subscribe.
func NewActionListener(broker Broker, table *rpc.Table, qos byte, logger Logger) *ActionListener {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ActionListener{
		broker: broker,
		table:  table,
		qos:    qos,
		logger: logger,
	}
}

// Start subscribes to tickline/action/call/+. The handler context
// outlives individual messages; cancelling ctx stops dispatching new
// handlers but does not unsubscribe.
func (l *ActionListener) Start(ctx context.Context) error {
	return l.broker.Subscribe(mqtt.Topics{}.AllActionCalls(), l.qos, func(topic string, payload []byte) error {
		return l.handleCall(ctx, topic, payload)
	})
}

// handleCall parses one call request and hands it to the table.
func (l *ActionListener) handleCall(ctx context.Context, topic string, payload []byte) error {
	action := actionFromTopic(topic)
	if action == "" {
		return fmt.Errorf("bridge: malformed action call topic %q", topic)
	}

	var req CallRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			l.logger.Warn("dropping malformed action call payload",
				"action", action,
				"error", err,
			)
			return fmt.Errorf("bridge: parsing call request: %w", err)
		}
	}

	responder := &mqttResponder{
		broker:  l.broker,
		qos:     l.qos,
		topicID: req.CallID,
		logger:  l.logger,
	}

	callID, err := l.table.Invoke(ctx, action, req.Args, responder, req.ReturnResponse)
	if err != nil {
		l.logger.Warn("action call rejected",
			"action", action,
			"error", err,
		)
		// Rejections never reach the table, so the responder has to
		// carry the failure back itself. Without a caller-supplied ID
		// there is no topic to publish on.
		if req.CallID != "" {
			responder.SendActionResponse(req.CallID, rpc.Result{
				Success: false,
				Error:   err.Error(),
			})
		}
		return nil
	}

	l.logger.Debug("action call dispatched",
		"action", action,
		"call_id", callID,
	)
	return nil
}

// actionFromTopic extracts the action name from a call topic.
// tickline/action/call/open_valve -> open_valve
func actionFromTopic(topic string) string {
	prefix := mqtt.TopicPrefixAction + "/call/"
	if !strings.HasPrefix(topic, prefix) {
		return ""
	}
	name := strings.TrimPrefix(topic, prefix)
	if strings.Contains(name, "/") {
		return ""
	}
	return name
}

// mqttResponder publishes call results on the result topic. The topic
// is scoped by the caller's correlation ID when one was supplied and
// the engine-assigned ID otherwise.
type mqttResponder struct {
	broker  Broker
	qos     byte
	topicID string
	logger  Logger
}

// SendActionResponse implements rpc.Responder.
func (r *mqttResponder) SendActionResponse(callID string, result rpc.Result) {
	topicID := r.topicID
	if topicID == "" {
		topicID = callID
	}

	msg := newCallResult(topicID, callID, result)
	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshalling call result", "call_id", callID, "error", err)
		return
	}

	topic := mqtt.Topics{}.ActionResult(topicID)
	if err := r.broker.Publish(topic, payload, r.qos, false); err != nil {
		r.logger.Error("publishing call result",
			"call_id", callID,
			"topic", topic,
			"error", err,
		)
	}
}
