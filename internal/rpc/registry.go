package rpc

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds declared actions. All methods are safe for concurrent
// use; declarations normally happen at boot but late registration is
// allowed.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Action
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Action)}
}

// Register declares an action. The schema is validated up front so
// invocation-time failures can only come from caller input.
func (r *Registry) Register(a *Action) error {
	if a == nil || a.Name == "" {
		return fmt.Errorf("rpc: action missing name")
	}
	if a.Handler == nil && a.Response != ResponseNone {
		return fmt.Errorf("%w: %q", ErrMissingHandler, a.Name)
	}
	if a.Response == "" {
		a.Response = ResponseNone
	}
	if !a.Response.valid() {
		return fmt.Errorf("rpc: action %q: unknown response mode %q", a.Name, a.Response)
	}
	seen := make(map[string]bool, len(a.Args))
	for _, arg := range a.Args {
		if arg.Name == "" {
			return fmt.Errorf("rpc: action %q: unnamed argument", a.Name)
		}
		if seen[arg.Name] {
			return fmt.Errorf("rpc: action %q: duplicate argument %q", a.Name, arg.Name)
		}
		seen[arg.Name] = true
		if !arg.Type.valid() {
			return fmt.Errorf("rpc: action %q: argument %q has unknown type %q", a.Name, arg.Name, arg.Type)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[a.Name]; exists {
		return fmt.Errorf("%w: %q", ErrActionExists, a.Name)
	}
	r.actions[a.Name] = a
	return nil
}

// Get returns a declared action.
func (r *Registry) Get(name string) (*Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrActionNotFound, name)
	}
	return a, nil
}

// List returns all declared actions sorted by name.
func (r *Registry) List() []*Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CoerceArgs validates caller-supplied arguments against the action's
// schema and returns them with JSON-decoded numerics normalised
// (float64 becomes int for int arguments, and so on). Unknown
// arguments are rejected; optional declared arguments may be absent.
func CoerceArgs(a *Action, supplied map[string]any) (map[string]any, error) {
	declared := make(map[string]Arg, len(a.Args))
	for _, arg := range a.Args {
		declared[arg.Name] = arg
	}
	for name := range supplied {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("%w: unknown argument %q", ErrInvalidArgument, name)
		}
	}

	out := make(map[string]any, len(supplied))
	for _, arg := range a.Args {
		raw, ok := supplied[arg.Name]
		if !ok {
			if arg.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: %q", ErrMissingArgument, arg.Name)
		}
		coerced, err := coerceValue(arg.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidArgument, arg.Name, err)
		}
		out[arg.Name] = coerced
	}
	return out, nil
}

func coerceValue(t ArgType, v any) (any, error) {
	switch t {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		return s, nil

	case TypeInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != float64(int(n)) {
				return nil, fmt.Errorf("want int, got fractional %v", n)
			}
			return int(n), nil
		}
		return nil, fmt.Errorf("want int, got %T", v)

	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", v)
		}
		return b, nil

	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("want float, got %T", v)

	case TypeStringArray, TypeIntArray, TypeBoolArray, TypeFloatArray:
		items, ok := v.([]any)
		if !ok {
			// Typed slices arrive from in-process callers.
			switch typed := v.(type) {
			case []string:
				items = make([]any, len(typed))
				for i, s := range typed {
					items[i] = s
				}
			case []int:
				items = make([]any, len(typed))
				for i, n := range typed {
					items[i] = n
				}
			case []bool:
				items = make([]any, len(typed))
				for i, b := range typed {
					items[i] = b
				}
			case []float64:
				items = make([]any, len(typed))
				for i, f := range typed {
					items[i] = f
				}
			default:
				return nil, fmt.Errorf("want array, got %T", v)
			}
		}
		elem := elementType(t)
		out := make([]any, len(items))
		for i, item := range items {
			coerced, err := coerceValue(elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			out[i] = coerced
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown type %q", t)
}

func elementType(t ArgType) ArgType {
	switch t {
	case TypeStringArray:
		return TypeString
	case TypeIntArray:
		return TypeInt
	case TypeBoolArray:
		return TypeBool
	case TypeFloatArray:
		return TypeFloat
	}
	return t
}
