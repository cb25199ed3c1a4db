package engine

import (
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestBuildScriptFromYAML(t *testing.T) {
	const raw = `
name: morning
mode: queued
max_queue: 3
steps:
  - log: waking up
  - set_flag: {key: lights_on, value: true}
  - delay: 5ms
  - repeat:
      count: 2
      steps:
        - publish: {topic: tickline/state/blinds, payload: open}
    label: blinds
  - wait_until: {flag: lights_on, timeout: 1s}
    label: confirm
`
	var spec ScriptSpec
	if err := yaml.Unmarshal([]byte(raw), &spec); err != nil {
		t.Fatalf("unmarshalling spec: %v", err)
	}

	var mu sync.Mutex
	var published []string
	env := BuildEnv{
		Store:  NewStore(),
		Logger: &recordingLogger{},
		Publish: func(topic string, payload []byte) error {
			mu.Lock()
			defer mu.Unlock()
			published = append(published, topic+"="+string(payload))
			return nil
		},
	}

	script, err := BuildScript(spec, env)
	if err != nil {
		t.Fatalf("building script: %v", err)
	}
	if script.Mode != ModeQueued {
		t.Errorf("mode = %q, want queued", script.Mode)
	}
	if script.MaxQueue != 3 {
		t.Errorf("max_queue = %d, want 3", script.MaxQueue)
	}
	if err := ValidateDescriptor(script.Root); err != nil {
		t.Fatalf("built graph failed validation: %v", err)
	}

	// Run it end to end on a live loop.
	eng, logger := setupEngine(t)
	mustRegister(t, eng, script)
	mustExecute(t, eng, "morning", nil)

	waitFor(t, 2*time.Second, func() bool { return logger.contains("script run completed") })
	mu.Lock()
	defer mu.Unlock()
	if len(published) != 2 {
		t.Errorf("published %d messages, want 2", len(published))
	}
	for _, p := range published {
		if p != "tickline/state/blinds=open" {
			t.Errorf("unexpected publish %q", p)
		}
	}
	if !env.Store.Bool("lights_on") {
		t.Error("set_flag step did not set the flag")
	}
	if !logger.contains("blinds iteration 1") {
		t.Error("missing repeat iteration log")
	}
}

func TestBuildScriptDefaultsToSingleMode(t *testing.T) {
	script, err := BuildScript(ScriptSpec{
		Name:  "plain",
		Steps: []StepSpec{{Log: "hi"}},
	}, BuildEnv{Logger: &recordingLogger{}})
	if err != nil {
		t.Fatalf("building script: %v", err)
	}
	if script.Mode != ModeSingle {
		t.Errorf("mode = %q, want single default", script.Mode)
	}
}

func TestBuildScriptErrors(t *testing.T) {
	store := NewStore()
	tests := []struct {
		name    string
		spec    ScriptSpec
		env     BuildEnv
		wantErr string
	}{
		{
			"missing name",
			ScriptSpec{Steps: []StepSpec{{Log: "x"}}},
			BuildEnv{Store: store},
			ErrMissingScript.Error(),
		},
		{
			"unknown mode",
			ScriptSpec{Name: "x", Mode: "eventually", Steps: []StepSpec{{Log: "x"}}},
			BuildEnv{Store: store},
			"invalid script mode",
		},
		{
			"empty step",
			ScriptSpec{Name: "x", Steps: []StepSpec{{}}},
			BuildEnv{Store: store},
			"no action",
		},
		{
			"bad delay",
			ScriptSpec{Name: "x", Steps: []StepSpec{{Delay: "soonish"}}},
			BuildEnv{Store: store},
			"parsing delay",
		},
		{
			"wait without flag",
			ScriptSpec{Name: "x", Steps: []StepSpec{{WaitUntil: &WaitSpec{}}}},
			BuildEnv{Store: store},
			ErrMissingCondition.Error(),
		},
		{
			"flag without store",
			ScriptSpec{Name: "x", Steps: []StepSpec{{WaitUntil: &WaitSpec{Flag: "f"}}}},
			BuildEnv{},
			"state store",
		},
		{
			"repeat zero count",
			ScriptSpec{Name: "x", Steps: []StepSpec{{Repeat: &RepeatSpec{Count: 0}}}},
			BuildEnv{Store: store},
			"must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildScript(tt.spec, tt.env)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestFlagConditions(t *testing.T) {
	store := NewStore()

	set := FlagSet(store, "f")
	clear := FlagClear(store, "f")
	if set(nil) {
		t.Error("FlagSet true before the flag is set")
	}
	if !clear(nil) {
		t.Error("FlagClear false before the flag is set")
	}

	store.Set("f", true)
	if !set(nil) || clear(nil) {
		t.Error("conditions did not track the flag")
	}
}

func TestStoreIsolatesValues(t *testing.T) {
	store := NewStore()
	nested := map[string]any{"inner": []any{1, 2}}
	store.Set("cfg", nested)

	nested["inner"] = "mutated"
	got, ok := store.Get("cfg")
	if !ok {
		t.Fatal("value missing")
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("value type %T", got)
	}
	if _, isSlice := m["inner"].([]any); !isSlice {
		t.Error("store value was mutated through the caller's reference")
	}
}
