package intent

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	logx "agendabot/pkg/logx"
)

// BackendConfig is the runtime description of one backend.
type BackendConfig struct {
	Name        string
	Kind        string
	Weight      float64
	Timeout     time.Duration
	Model       string
	APIKey      string
	APIKeyEnv   string
	BaseURL     string
	Region      string
	MaxTokens   int
	Temperature float64
}

// Key returns APIKey, or the value of APIKeyEnv when APIKey is empty.
func (c BackendConfig) Key() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

type Factory func(cfg BackendConfig, log logx.Logger) (Backend, error)

// Registry maps a backend kind to its constructor.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(kind)] = f
}

func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs members in config order. A backend that fails to build is
// logged and left out; Build fails only when none could be built.
func (r *Registry) Build(cfgs []BackendConfig, log logx.Logger) ([]Member, error) {
	var members []Member
	for _, c := range cfgs {
		kind := strings.ToLower(strings.TrimSpace(c.Kind))
		if c.Name == "" {
			c.Name = kind
		}
		r.mu.RLock()
		f, ok := r.factories[kind]
		r.mu.RUnlock()
		if !ok {
			log.Warn("unknown classifier backend kind", logx.String("name", c.Name), logx.String("kind", kind))
			continue
		}
		b, err := f(c, log.With(logx.String("backend", c.Name)))
		if err != nil {
			log.Warn("classifier backend disabled", logx.String("name", c.Name), logx.String("kind", kind), logx.Err(err))
			continue
		}
		members = append(members, Member{Backend: b, Weight: c.Weight, Timeout: c.Timeout})
	}
	if len(members) == 0 && len(cfgs) > 0 {
		return nil, fmt.Errorf("intent: none of %d configured backends could be built", len(cfgs))
	}
	return members, nil
}
