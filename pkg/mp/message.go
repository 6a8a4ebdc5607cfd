package mp

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

// Wire limits shared by every process on a channel
const (
	// MaxNameLen bounds the action name, including its terminating NUL
	MaxNameLen = 64
	// MaxParamLen bounds the opaque parameter
	MaxParamLen = 256
	// MaxFDs bounds the descriptors attached to one message
	MaxFDs = 8
)

// Message is the unit exchanged between processes.
//
// Files attached to an outgoing message are borrowed: the channel duplicates
// them into the peer and never closes them. Files on a received message are
// owned by the receiver, which must Close the message when done with them.
type Message struct {
	Name  string
	Param []byte
	Files []*os.File
}

// Close releases every file attached to the message
func (m *Message) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, f := range m.Files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	m.Files = nil
	return errors.Join(errs...)
}

// String returns a string representation of the message
func (m *Message) String() string {
	return fmt.Sprintf("Message{Name: %s, Param: %d bytes, Files: %d}", m.Name, len(m.Param), len(m.Files))
}

func (m *Message) validate() error {
	if m == nil {
		return types.NewError(types.ErrCodeInvalid, "message cannot be nil")
	}
	if err := validateName(m.Name); err != nil {
		return err
	}
	if len(m.Param) > MaxParamLen {
		return types.NewError(types.ErrCodeTooLarge,
			fmt.Sprintf("param length %d exceeds %d bytes", len(m.Param), MaxParamLen))
	}
	if len(m.Files) > MaxFDs {
		return types.NewError(types.ErrCodeTooLarge,
			fmt.Sprintf("%d files exceed the limit of %d", len(m.Files), MaxFDs))
	}
	for i, f := range m.Files {
		if f == nil {
			return types.NewError(types.ErrCodeInvalid, fmt.Sprintf("file %d is nil", i))
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return types.NewError(types.ErrCodeInvalid, "action name cannot be empty")
	}
	if len(name) >= MaxNameLen {
		return types.NewError(types.ErrCodeTooLarge,
			fmt.Sprintf("action name %q is longer than %d bytes", name, MaxNameLen-1))
	}
	if strings.IndexByte(name, 0) >= 0 {
		return types.NewError(types.ErrCodeInvalid, "action name cannot contain NUL")
	}
	return nil
}

// Reply aggregates the outcome of a Request.
//
// NbSent counts peers the request was delivered to, minus peers that answered
// with an ignore reply. NbReceived counts real replies, which are in Msgs.
// Unreachable counts peers the request could not be delivered to.
type Reply struct {
	NbSent      int
	NbReceived  int
	Unreachable int
	Msgs        []*Message
}

// Close releases the files of every reply message
func (r *Reply) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, m := range r.Msgs {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// String returns a string representation of the reply
func (r *Reply) String() string {
	return fmt.Sprintf("Reply{Sent: %d, Received: %d, Unreachable: %d}", r.NbSent, r.NbReceived, r.Unreachable)
}
