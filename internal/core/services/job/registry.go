package job

import (
	"fmt"
	"sync"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/domain"
	"github.com/vishnukl-alation/hive/internal/static/errs"
)

// Factory rebuilds a job from the payloads of a SubmitJob message
type Factory func(c *codec.PayloadCodec, payloads map[string]domain.Payload) (primary.Job, error)

// Registry maps job kinds to factories on the executor side
type Registry struct {
	codec *codec.PayloadCodec

	mu        sync.RWMutex
	factories map[domain.JobKind]Factory
}

// NewRegistry creates an empty registry
func NewRegistry(c *codec.PayloadCodec) *Registry {
	return &Registry{
		codec:     c,
		factories: make(map[domain.JobKind]Factory),
	}
}

// NewDefaultRegistry creates a registry holding the built-in job kinds
func NewDefaultRegistry(c *codec.PayloadCodec) *Registry {
	r := NewRegistry(c)
	r.Register(domain.JobKindStatus, statusJobFactory)
	r.Register(domain.JobKindDriverInfo, driverInfoJobFactory)
	return r
}

// Register adds or replaces the factory of a kind
func (r *Registry) Register(kind domain.JobKind, f Factory) {
	r.mu.Lock()
	r.factories[kind] = f
	r.mu.Unlock()
}

// Build rebuilds the job of the given kind
func (r *Registry) Build(kind domain.JobKind, payloads map[string]domain.Payload) (primary.Job, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownJobKind, kind)
	}
	return f(r.codec, payloads)
}

// Kinds returns the registered kinds
func (r *Registry) Kinds() []domain.JobKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.JobKind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}

func requirePayload(payloads map[string]domain.Payload, name string, t domain.PayloadType) (domain.Payload, error) {
	p, ok := payloads[name]
	if !ok {
		return domain.Payload{}, &errs.CodecError{PayloadType: string(t), Err: fmt.Errorf("missing payload %q", name)}
	}
	return p, nil
}
