package mp

import (
	"context"
	"strings"
	"testing"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

func noopAction() Action {
	return ActionFunc(func(ctx context.Context, msg *Message, peer string) error { return nil })
}

func TestActionRegistryRegisterUnregister(t *testing.T) {
	r := newActionRegistry()

	for n := 1; n < MaxNameLen; n++ {
		name := strings.Repeat("a", n)
		if err := r.register(name, noopAction()); err != nil {
			t.Fatalf("register(%d bytes) error = %v", n, err)
		}
		if err := r.unregister(name); err != nil {
			t.Fatalf("unregister(%d bytes) error = %v", n, err)
		}
	}

	if r.len() != 0 {
		t.Errorf("registry has %d entries after unregistering everything", r.len())
	}
}

func TestActionRegistryDuplicate(t *testing.T) {
	r := newActionRegistry()

	if err := r.register("ping", noopAction()); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	err := r.register("ping", noopAction())
	if !types.IsErrCode(err, types.ErrCodeAlreadyExists) {
		t.Errorf("duplicate register() error = %v, want %s", err, types.ErrCodeAlreadyExists)
	}

	if _, ok := r.lookup("ping"); !ok {
		t.Error("lookup() did not find registered action")
	}
}

func TestActionRegistryUnregisterAbsent(t *testing.T) {
	r := newActionRegistry()
	if err := r.unregister("missing"); err != nil {
		t.Errorf("unregister() of absent name error = %v, want nil", err)
	}
}

func TestActionRegistryValidation(t *testing.T) {
	tests := []struct {
		name   string
		action string
		handle Action
		code   string
	}{
		{"empty name", "", noopAction(), types.ErrCodeInvalid},
		{"name too long", strings.Repeat("x", MaxNameLen), noopAction(), types.ErrCodeTooLarge},
		{"name with NUL", "a\x00b", noopAction(), types.ErrCodeInvalid},
		{"nil action", "ok", nil, types.ErrCodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newActionRegistry()
			err := r.register(tt.action, tt.handle)
			if !types.IsErrCode(err, tt.code) {
				t.Errorf("register() error = %v, want %s", err, tt.code)
			}
			if r.len() != 0 {
				t.Error("failed register() mutated the registry")
			}
		})
	}

	if err := newActionRegistry().unregister(""); !types.IsErrCode(err, types.ErrCodeInvalid) {
		t.Errorf("unregister(\"\") error = %v, want %s", err, types.ErrCodeInvalid)
	}
}
