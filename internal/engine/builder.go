package engine

import (
	"fmt"
	"time"
)

// ScriptSpec is the YAML shape of a configured script. The config
// loader decodes these; BuildScript compiles them into descriptor
// graphs at boot.
type ScriptSpec struct {
	Name     string     `yaml:"name"`
	Mode     string     `yaml:"mode"`
	MaxQueue int        `yaml:"max_queue"`
	OnBoot   bool       `yaml:"on_boot"`
	Steps    []StepSpec `yaml:"steps"`
}

// StepSpec is one step in a configured script. Exactly one action
// field must be set; nested steps appear under repeat/while/if.
type StepSpec struct {
	Label string `yaml:"label"`

	Delay         string       `yaml:"delay"` // Go duration string, e.g. "500ms"
	Log           string       `yaml:"log"`
	Publish       *PublishSpec `yaml:"publish"`
	SetFlag       *FlagSpec    `yaml:"set_flag"`
	WaitUntil     *WaitSpec    `yaml:"wait_until"`
	ScriptExecute *ExecSpec    `yaml:"script_execute"`
	ScriptWait    string       `yaml:"script_wait"`
	Repeat        *RepeatSpec  `yaml:"repeat"`
	While         *WhileSpec   `yaml:"while"`
	If            *IfSpec      `yaml:"if"`
}

// PublishSpec publishes a fixed payload to an MQTT topic.
type PublishSpec struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
}

// FlagSpec sets a named flag in the state store.
type FlagSpec struct {
	Key   string `yaml:"key"`
	Value bool   `yaml:"value"`
}

// WaitSpec suspends until a state flag is set (or clear), with an
// optional timeout.
type WaitSpec struct {
	Flag    string `yaml:"flag"`
	Clear   bool   `yaml:"clear"` // wait for the flag to be unset instead
	Timeout string `yaml:"timeout"`
}

// ExecSpec invokes another script with fixed arguments.
type ExecSpec struct {
	Script string         `yaml:"script"`
	Args   map[string]any `yaml:"args"`
}

// RepeatSpec runs nested steps a fixed number of times.
type RepeatSpec struct {
	Count int        `yaml:"count"`
	Steps []StepSpec `yaml:"steps"`
}

// WhileSpec runs nested steps while a state flag holds.
type WhileSpec struct {
	Flag  string     `yaml:"flag"`
	Clear bool       `yaml:"clear"`
	Steps []StepSpec `yaml:"steps"`
}

// IfSpec branches on a state flag.
type IfSpec struct {
	Flag  string     `yaml:"flag"`
	Clear bool       `yaml:"clear"`
	Then  []StepSpec `yaml:"then"`
	Else  []StepSpec `yaml:"else"`
}

// BuildEnv carries the runtime hooks configured steps bind to. Publish
// may be nil when MQTT is disabled; publish steps then log and no-op.
type BuildEnv struct {
	Store   *Store
	Logger  Logger
	Publish func(topic string, payload []byte) error
}

// BuildScript compiles a spec into a registrable Script.
func BuildScript(spec ScriptSpec, env BuildEnv) (*Script, error) {
	if spec.Name == "" {
		return nil, ErrMissingScript
	}
	mode := Mode(spec.Mode)
	if spec.Mode == "" {
		mode = ModeSingle
	}
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, spec.Mode)
	}
	if env.Logger == nil {
		env.Logger = noopLogger{}
	}

	children, err := buildSteps(spec.Steps, env)
	if err != nil {
		return nil, fmt.Errorf("engine: script %q: %w", spec.Name, err)
	}

	return &Script{
		Name:     spec.Name,
		Mode:     mode,
		MaxQueue: spec.MaxQueue,
		Root:     Sequence("", children...),
	}, nil
}

func buildSteps(specs []StepSpec, env BuildEnv) ([]*Descriptor, error) {
	out := make([]*Descriptor, 0, len(specs))
	for i, s := range specs {
		d, err := buildStep(s, env)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func buildStep(s StepSpec, env BuildEnv) (*Descriptor, error) { //nolint:gocyclo // one case per step type
	switch {
	case s.Delay != "":
		d, err := time.ParseDuration(s.Delay)
		if err != nil {
			return nil, fmt.Errorf("parsing delay: %w", err)
		}
		return Delay(s.Label, d), nil

	case s.Log != "":
		msg := s.Log
		logger := env.Logger
		return Lambda(s.Label, func(r *Run) error {
			logger.Info(msg, "run_id", r.ID(), "script", r.Script())
			return nil
		}), nil

	case s.Publish != nil:
		if s.Publish.Topic == "" {
			return nil, fmt.Errorf("publish step missing topic")
		}
		topic, payload := s.Publish.Topic, []byte(s.Publish.Payload)
		publish := env.Publish
		logger := env.Logger
		return Lambda(s.Label, func(r *Run) error {
			if publish == nil {
				logger.Debug("publish step skipped, broker disabled", "topic", topic)
				return nil
			}
			return publish(topic, payload)
		}), nil

	case s.SetFlag != nil:
		if s.SetFlag.Key == "" {
			return nil, fmt.Errorf("set_flag step missing key")
		}
		if env.Store == nil {
			return nil, fmt.Errorf("set_flag step requires a state store")
		}
		key, value, store := s.SetFlag.Key, s.SetFlag.Value, env.Store
		return Lambda(s.Label, func(*Run) error {
			store.Set(key, value)
			return nil
		}), nil

	case s.WaitUntil != nil:
		cond, err := flagCondition(s.WaitUntil.Flag, s.WaitUntil.Clear, env)
		if err != nil {
			return nil, err
		}
		var timeout time.Duration
		if s.WaitUntil.Timeout != "" {
			timeout, err = time.ParseDuration(s.WaitUntil.Timeout)
			if err != nil {
				return nil, fmt.Errorf("parsing wait_until timeout: %w", err)
			}
		}
		return WaitUntil(s.Label, cond, timeout), nil

	case s.ScriptExecute != nil:
		if s.ScriptExecute.Script == "" {
			return nil, ErrMissingScript
		}
		args := deepCopyMap(s.ScriptExecute.Args)
		return ScriptExecute(s.Label, s.ScriptExecute.Script, func(*Run) map[string]any {
			return args
		}), nil

	case s.ScriptWait != "":
		return ScriptWait(s.Label, s.ScriptWait), nil

	case s.Repeat != nil:
		if s.Repeat.Count <= 0 {
			return nil, fmt.Errorf("repeat count must be positive")
		}
		body, err := buildSteps(s.Repeat.Steps, env)
		if err != nil {
			return nil, err
		}
		return RepeatN(s.Label, s.Repeat.Count, body...), nil

	case s.While != nil:
		cond, err := flagCondition(s.While.Flag, s.While.Clear, env)
		if err != nil {
			return nil, err
		}
		body, err := buildSteps(s.While.Steps, env)
		if err != nil {
			return nil, err
		}
		return While(s.Label, cond, body...), nil

	case s.If != nil:
		cond, err := flagCondition(s.If.Flag, s.If.Clear, env)
		if err != nil {
			return nil, err
		}
		then, err := buildSteps(s.If.Then, env)
		if err != nil {
			return nil, err
		}
		els, err := buildSteps(s.If.Else, env)
		if err != nil {
			return nil, err
		}
		return If(s.Label, cond, then, els), nil
	}
	return nil, fmt.Errorf("step has no action")
}

func flagCondition(flag string, clear bool, env BuildEnv) (Condition, error) {
	if flag == "" {
		return nil, ErrMissingCondition
	}
	if env.Store == nil {
		return nil, fmt.Errorf("flag condition requires a state store")
	}
	if clear {
		return FlagClear(env.Store, flag), nil
	}
	return FlagSet(env.Store, flag), nil
}
