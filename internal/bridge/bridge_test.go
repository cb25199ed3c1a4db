package bridge

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tealfork/tickline-core/internal/engine"
	"github.com/tealfork/tickline-core/internal/infrastructure/mqtt"
	"github.com/tealfork/tickline-core/internal/rpc"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// fakeBroker records publishes and routes delivered messages to
// matching subscriptions.
type fakeBroker struct {
	mu        sync.Mutex
	published []brokerMessage
	handlers  map[string]mqtt.MessageHandler
}

type brokerMessage struct {
	Topic   string
	Payload []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, brokerMessage{Topic: topic, Payload: payload})
	return nil
}

func (b *fakeBroker) Subscribe(pattern string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = handler
	return nil
}

// deliver routes a message to the first subscription whose pattern
// matches. Only the wildcard forms the bridge uses are supported.
func (b *fakeBroker) deliver(topic string, payload []byte) error {
	b.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range b.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	b.mu.Unlock()
	if handler == nil {
		return nil
	}
	return handler(topic, payload)
}

func topicMatches(pattern, topic string) bool {
	if strings.HasSuffix(pattern, "/#") {
		return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "/#")+"/")
	}
	if strings.HasSuffix(pattern, "/+") {
		prefix := strings.TrimSuffix(pattern, "/+")
		rest := strings.TrimPrefix(topic, prefix+"/")
		return rest != topic && !strings.Contains(rest, "/")
	}
	return pattern == topic
}

func (b *fakeBroker) messages() []brokerMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	cpy := make([]brokerMessage, len(b.published))
	copy(cpy, b.published)
	return cpy
}

// waitForMessages polls until the broker has at least n publishes.
func (b *fakeBroker) waitForMessages(t *testing.T, n int) []brokerMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := b.messages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d published messages, have %d", n, len(b.messages()))
	return nil
}

type fakeStore struct {
	mu     sync.Mutex
	values map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]any)}
}

func (s *fakeStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *fakeStore) get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// ─── Action Listener Tests ──────────────────────────────────────────────────

func setupListener(t *testing.T, actions ...rpc.Action) *fakeBroker {
	t.Helper()
	registry := rpc.NewRegistry()
	for i := range actions {
		if err := registry.Register(&actions[i]); err != nil {
			t.Fatalf("registering action: %v", err)
		}
	}
	table := rpc.NewTable(registry, 200*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	table.Start(ctx)

	broker := newFakeBroker()
	b := New(broker, table, nil, 1, nil)
	if err := b.Start(ctx); err != nil {
		t.Fatalf("starting bridge: %v", err)
	}
	return broker
}

func TestActionCallRoundtrip(t *testing.T) {
	broker := setupListener(t, rpc.Action{
		Name:     "open_valve",
		Args:     []rpc.Arg{{Name: "duration", Type: rpc.TypeInt}},
		Response: rpc.ResponseStatus,
		Handler: func(_ context.Context, call *rpc.Call) {
			_ = call.Respond(rpc.Result{Success: true})
		},
	})

	req, _ := json.Marshal(CallRequest{CallID: "req-1", Args: map[string]any{"duration": 30}})
	if err := broker.deliver("tickline/action/call/open_valve", req); err != nil {
		t.Fatalf("delivering call: %v", err)
	}

	msgs := broker.waitForMessages(t, 1)
	if msgs[0].Topic != "tickline/action/result/req-1" {
		t.Errorf("result topic = %q", msgs[0].Topic)
	}

	var result CallResult
	if err := json.Unmarshal(msgs[0].Payload, &result); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if !result.Success {
		t.Errorf("result = %+v, want success", result)
	}
	if result.CallID != "req-1" {
		t.Errorf("result call_id = %q, want req-1", result.CallID)
	}
	if result.EngineCallID == "" {
		t.Error("result missing engine call ID")
	}
}

func TestActionCallUnknownActionPublishesFailure(t *testing.T) {
	broker := setupListener(t)

	req, _ := json.Marshal(CallRequest{CallID: "req-9"})
	if err := broker.deliver("tickline/action/call/missing", req); err != nil {
		t.Fatalf("delivering call: %v", err)
	}

	msgs := broker.waitForMessages(t, 1)
	if msgs[0].Topic != "tickline/action/result/req-9" {
		t.Errorf("result topic = %q", msgs[0].Topic)
	}

	var result CallResult
	if err := json.Unmarshal(msgs[0].Payload, &result); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if result.Success {
		t.Error("expected failure result for unknown action")
	}
	if result.Error == "" {
		t.Error("failure result missing error description")
	}
}

func TestActionCallWithoutCallIDUsesEngineID(t *testing.T) {
	broker := setupListener(t, rpc.Action{
		Name:     "ping",
		Response: rpc.ResponseStatus,
		Handler: func(_ context.Context, call *rpc.Call) {
			_ = call.Respond(rpc.Result{Success: true})
		},
	})

	if err := broker.deliver("tickline/action/call/ping", nil); err != nil {
		t.Fatalf("delivering call: %v", err)
	}

	msgs := broker.waitForMessages(t, 1)
	var result CallResult
	if err := json.Unmarshal(msgs[0].Payload, &result); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if result.CallID == "" {
		t.Fatal("result missing call_id")
	}
	want := "tickline/action/result/" + result.CallID
	if msgs[0].Topic != want {
		t.Errorf("result topic = %q, want %q", msgs[0].Topic, want)
	}
	if result.EngineCallID != "" {
		t.Errorf("engine_call_id = %q, want empty when no caller ID supplied", result.EngineCallID)
	}
}

func TestActionCallTimeoutPublishesFailure(t *testing.T) {
	broker := setupListener(t, rpc.Action{
		Name:     "slow",
		Response: rpc.ResponseStatus,
		Handler:  func(context.Context, *rpc.Call) {}, // never responds
	})

	req, _ := json.Marshal(CallRequest{CallID: "req-slow"})
	if err := broker.deliver("tickline/action/call/slow", req); err != nil {
		t.Fatalf("delivering call: %v", err)
	}

	msgs := broker.waitForMessages(t, 1)
	var result CallResult
	if err := json.Unmarshal(msgs[0].Payload, &result); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if result.Success {
		t.Error("expected timeout failure result")
	}
}

func TestActionCallMalformedPayload(t *testing.T) {
	broker := setupListener(t, rpc.Action{
		Name:     "noop",
		Response: rpc.ResponseNone,
	})

	err := broker.deliver("tickline/action/call/noop", []byte("{not json"))
	if err == nil {
		t.Error("expected handler error for malformed payload")
	}
	if got := len(broker.messages()); got != 0 {
		t.Errorf("published %d messages for malformed payload, want 0", got)
	}
}

func TestActionFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"tickline/action/call/open_valve", "open_valve"},
		{"tickline/action/call/", ""},
		{"tickline/action/call/a/b", ""},
		{"tickline/state/hall", ""},
	}
	for _, tt := range tests {
		if got := actionFromTopic(tt.topic); got != tt.want {
			t.Errorf("actionFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

// ─── State Mirror Tests ─────────────────────────────────────────────────────

func TestStateMirrorStoresDecodedValues(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()

	mirror := NewStateMirror(broker, store, 1, nil)
	if err := mirror.Start(); err != nil {
		t.Fatalf("starting mirror: %v", err)
	}

	deliveries := []struct {
		topic   string
		payload string
		key     string
		want    any
	}{
		{"tickline/state/hall/occupied", "true", "hall/occupied", true},
		{"tickline/state/hall/lux", "42.5", "hall/lux", 42.5},
		{"tickline/state/boiler", `{"temp": 61}`, "boiler", map[string]any{"temp": float64(61)}},
		{"tickline/state/mode", "eco", "mode", "eco"},
	}

	for _, d := range deliveries {
		if err := broker.deliver(d.topic, []byte(d.payload)); err != nil {
			t.Fatalf("delivering %s: %v", d.topic, err)
		}
	}

	for _, d := range deliveries {
		if got := store.get(d.key); !reflect.DeepEqual(got, d.want) {
			t.Errorf("store[%q] = %#v, want %#v", d.key, got, d.want)
		}
	}
}

// ─── Run Publisher Tests ────────────────────────────────────────────────────

func TestRunPublisherLifecycleTopics(t *testing.T) {
	broker := newFakeBroker()
	pub := NewRunPublisher(broker, 1, nil)

	pub.PublishRunStarted(&engine.RunRecord{
		ID:          "run-1",
		Script:      "morning_routine",
		TriggerType: "api",
		Status:      "running",
	})

	duration := 120
	errMsg := "step 2 failed"
	pub.PublishRunCompleted(&engine.RunRecord{
		ID:          "run-1",
		Script:      "morning_routine",
		TriggerType: "api",
		Status:      "failed",
		DurationMS:  &duration,
		Error:       &errMsg,
	})

	msgs := broker.messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}

	if msgs[0].Topic != "tickline/core/run/morning_routine/started" {
		t.Errorf("started topic = %q", msgs[0].Topic)
	}
	if msgs[1].Topic != "tickline/core/run/morning_routine/completed" {
		t.Errorf("completed topic = %q", msgs[1].Topic)
	}

	var evt RunEvent
	if err := json.Unmarshal(msgs[1].Payload, &evt); err != nil {
		t.Fatalf("parsing run event: %v", err)
	}
	if evt.Status != "failed" || evt.Error != "step 2 failed" {
		t.Errorf("event = %+v", evt)
	}
	if evt.DurationMS == nil || *evt.DurationMS != 120 {
		t.Errorf("duration = %v, want 120", evt.DurationMS)
	}
}

// ─── Metrics Publisher Tests ────────────────────────────────────────────────

type fakeMetricsSink struct {
	mu     sync.Mutex
	points []runMetric
}

type runMetric struct {
	Script     string
	Status     string
	DurationMS float64
}

func (s *fakeMetricsSink) WriteRunMetric(script, status string, durationMS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, runMetric{script, status, durationMS})
}

func TestMetricsPublisherWritesTerminalRuns(t *testing.T) {
	sink := &fakeMetricsSink{}
	pub := NewMetricsPublisher(sink)

	pub.PublishRunStarted(&engine.RunRecord{
		ID:     "run-2",
		Script: "night_mode",
		Status: "running",
	})
	if len(sink.points) != 0 {
		t.Fatalf("started event wrote %d points, want 0", len(sink.points))
	}

	duration := 85
	pub.PublishRunCompleted(&engine.RunRecord{
		ID:         "run-2",
		Script:     "night_mode",
		Status:     "completed",
		DurationMS: &duration,
	})

	if len(sink.points) != 1 {
		t.Fatalf("wrote %d points, want 1", len(sink.points))
	}
	got := sink.points[0]
	want := runMetric{Script: "night_mode", Status: "completed", DurationMS: 85}
	if got != want {
		t.Errorf("point = %+v, want %+v", got, want)
	}
}

func TestMetricsPublisherMissingDuration(t *testing.T) {
	sink := &fakeMetricsSink{}
	pub := NewMetricsPublisher(sink)

	pub.PublishRunCompleted(&engine.RunRecord{
		ID:     "run-3",
		Script: "purge",
		Status: "cancelled",
	})

	if len(sink.points) != 1 {
		t.Fatalf("wrote %d points, want 1", len(sink.points))
	}
	if got := sink.points[0].DurationMS; got != 0 {
		t.Errorf("duration = %v, want 0 when record carries none", got)
	}
}

// ─── Filter Source Tests ────────────────────────────────────────────────────

func TestFilterSourceForwardsSubscription(t *testing.T) {
	broker := newFakeBroker()
	source := FilterSource{Broker: broker}

	var got []byte
	err := source.Subscribe("tickline/state/hall/lux", 1, func(_ string, payload []byte) error {
		got = payload
		return nil
	})
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	if err := broker.deliver("tickline/state/hall/lux", []byte("17")); err != nil {
		t.Fatalf("delivering: %v", err)
	}
	if string(got) != "17" {
		t.Errorf("handler payload = %q, want 17", got)
	}
}
