package mp

import (
	"context"
	"fmt"
	"sync"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

// Action handles messages addressed to a registered name
type Action interface {
	// HandleMessage processes a PLAIN or REQUEST message. peer is the
	// sender's socket path, suitable for Channel.Reply. The action owns
	// msg.Files.
	HandleMessage(ctx context.Context, msg *Message, peer string) error
}

// ActionFunc is a function adapter for Action
type ActionFunc func(ctx context.Context, msg *Message, peer string) error

// HandleMessage implements Action
func (f ActionFunc) HandleMessage(ctx context.Context, msg *Message, peer string) error {
	return f(ctx, msg, peer)
}

type actionRegistry struct {
	mu      sync.Mutex
	actions map[string]Action
}

func newActionRegistry() *actionRegistry {
	return &actionRegistry{actions: make(map[string]Action)}
}

func (r *actionRegistry) register(name string, action Action) error {
	if err := validateName(name); err != nil {
		return err
	}
	if action == nil {
		return types.NewError(types.ErrCodeInvalid, "action cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return types.NewError(types.ErrCodeAlreadyExists, fmt.Sprintf("action already registered: %s", name))
	}
	r.actions[name] = action
	return nil
}

// unregister removes name; unknown names are a no-op
func (r *actionRegistry) unregister(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, name)
	return nil
}

func (r *actionRegistry) lookup(name string) (Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[name]
	return a, ok
}

func (r *actionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}
