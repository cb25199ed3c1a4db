package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Logger is the minimal logging interface the filter package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscriber attaches a handler to a broker topic.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// Publisher sends aggregate outputs to the broker.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// PointWriter records aggregate outputs in the time-series store.
type PointWriter interface {
	WriteFilterPoint(pipeline, aggregator string, value float64, ts time.Time)
}

// Spec is the YAML shape of one configured pipeline.
type Spec struct {
	Name        string   `yaml:"name"`
	SourceTopic string   `yaml:"source_topic"`
	WindowSize  int      `yaml:"window_size"`
	SendEvery   int      `yaml:"send_every"`
	SendFirstAt int      `yaml:"send_first_at"`
	Aggregators []string `yaml:"aggregators"`
	OutputTopic string   `yaml:"output_topic"`
}

// Pipeline feeds broker samples through a sliding window and fans the
// aggregates out to the broker and the time-series store.
type Pipeline struct {
	name        string
	sourceTopic string
	outputTopic string

	mu     sync.Mutex
	window *Window

	aggregators map[string]Aggregator

	publisher Publisher   // may be nil
	points    PointWriter // may be nil
	logger    Logger

	emitted int
}

// NewPipeline builds a pipeline from its spec.
func NewPipeline(spec Spec, publisher Publisher, points PointWriter, logger Logger) (*Pipeline, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("filter: pipeline missing name")
	}
	if spec.SourceTopic == "" {
		return nil, fmt.Errorf("filter: pipeline %q missing source_topic", spec.Name)
	}
	if len(spec.Aggregators) == 0 {
		return nil, fmt.Errorf("filter: pipeline %q declares no aggregators", spec.Name)
	}
	if logger == nil {
		logger = noopLogger{}
	}

	window, err := NewWindow(spec.WindowSize, spec.SendEvery, spec.SendFirstAt)
	if err != nil {
		return nil, fmt.Errorf("filter: pipeline %q: %w", spec.Name, err)
	}

	aggregators := make(map[string]Aggregator, len(spec.Aggregators))
	for _, name := range spec.Aggregators {
		agg, aggErr := AggregatorByName(name)
		if aggErr != nil {
			return nil, fmt.Errorf("filter: pipeline %q: %w", spec.Name, aggErr)
		}
		aggregators[name] = agg
	}

	outputTopic := spec.OutputTopic
	if outputTopic == "" {
		outputTopic = "tickline/filter/" + spec.Name
	}

	return &Pipeline{
		name:        spec.Name,
		sourceTopic: spec.SourceTopic,
		outputTopic: outputTopic,
		window:      window,
		aggregators: aggregators,
		publisher:   publisher,
		points:      points,
		logger:      logger,
	}, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Attach subscribes the pipeline to its source topic.
func (p *Pipeline) Attach(sub Subscriber) error {
	return sub.Subscribe(p.sourceTopic, 0, func(topic string, payload []byte) error {
		sample, err := parseSample(payload)
		if err != nil {
			p.logger.Warn("discarding unparseable sample",
				"pipeline", p.name,
				"topic", topic,
				"error", err,
			)
			return nil // malformed input is not a subscription failure
		}
		p.Offer(sample)
		return nil
	})
}

// Offer pushes one sample through the window, emitting aggregates when
// the cadence fires. Safe for concurrent use.
func (p *Pipeline) Offer(sample float64) {
	p.mu.Lock()
	values, emit := p.window.Push(sample)
	if emit {
		p.emitted++
	}
	n := p.emitted
	p.mu.Unlock()

	if !emit {
		return
	}

	now := time.Now().UTC()
	out := make(map[string]float64, len(p.aggregators))
	for name, agg := range p.aggregators {
		v := agg(values)
		out[name] = v
		if p.points != nil {
			p.points.WriteFilterPoint(p.name, name, v, now)
		}
	}

	p.logger.Debug("filter emission",
		"pipeline", p.name,
		"emission", n,
		"window_len", len(values),
	)

	if p.publisher != nil {
		payload, err := json.Marshal(out)
		if err != nil {
			p.logger.Error("failed to encode aggregates", "pipeline", p.name, "error", err)
			return
		}
		if err := p.publisher.Publish(p.outputTopic, payload, 0, false); err != nil {
			p.logger.Error("failed to publish aggregates",
				"pipeline", p.name,
				"topic", p.outputTopic,
				"error", err,
			)
		}
	}
}

// Emitted returns how many aggregate emissions have fired.
func (p *Pipeline) Emitted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emitted
}

// parseSample accepts a bare number, or a JSON object with a "value"
// field, as the sample payload.
func parseSample(payload []byte) (float64, error) {
	text := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v, nil
	}
	var obj struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil && obj.Value != nil {
		return *obj.Value, nil
	}
	return 0, fmt.Errorf("not a numeric sample: %q", text)
}
