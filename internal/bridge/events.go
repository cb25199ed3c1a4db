package bridge

import (
	"encoding/json"
	"time"

	"github.com/tealfork/tickline-core/internal/engine"
	"github.com/tealfork/tickline-core/internal/infrastructure/mqtt"
)

// RunPublisher pushes run lifecycle events onto the broker. It
// implements engine.EventPublisher.
//
// Events are best-effort: a publish failure is logged and the run
// continues unaffected.
type RunPublisher struct {
	broker Broker
	qos    byte
	logger Logger
}

// NewRunPublisher creates a publisher using the given QoS for all
// lifecycle topics.
func NewRunPublisher(broker Broker, qos byte, logger Logger) *RunPublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &RunPublisher{broker: broker, qos: qos, logger: logger}
}

// PublishRunStarted announces a newly started run.
func (p *RunPublisher) PublishRunStarted(rec *engine.RunRecord) {
	p.publish(mqtt.Topics{}.RunStarted(rec.Script), RunEvent{
		RunID:       rec.ID,
		Script:      rec.Script,
		TriggerType: rec.TriggerType,
		Status:      rec.Status,
		Timestamp:   time.Now().UTC(),
	})
}

// PublishRunCompleted announces a terminal run transition. Completed,
// failed and cancelled runs all land on the completed topic; the
// status field distinguishes them.
func (p *RunPublisher) PublishRunCompleted(rec *engine.RunRecord) {
	evt := RunEvent{
		RunID:       rec.ID,
		Script:      rec.Script,
		TriggerType: rec.TriggerType,
		Status:      rec.Status,
		Timestamp:   time.Now().UTC(),
		DurationMS:  rec.DurationMS,
	}
	if rec.Error != nil {
		evt.Error = *rec.Error
	}
	p.publish(mqtt.Topics{}.RunCompleted(rec.Script), evt)
}

func (p *RunPublisher) publish(topic string, evt RunEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("marshalling run event", "run_id", evt.RunID, "error", err)
		return
	}
	if err := p.broker.Publish(topic, payload, p.qos, false); err != nil {
		p.logger.Warn("publishing run event",
			"run_id", evt.RunID,
			"topic", topic,
			"error", err,
		)
	}
}
