package mp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/billm/baaaht/mpchan/internal/config"
	"github.com/billm/baaaht/mpchan/internal/logger"
	"github.com/billm/baaaht/mpchan/pkg/process"
	"github.com/billm/baaaht/mpchan/pkg/types"
)

// testPrefix returns a socket prefix in a fresh short directory; socket
// paths have a small length limit
func testPrefix(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mp")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s")
}

func testChannelConfig() config.ChannelConfig {
	return config.ChannelConfig{
		RequestTimeout: 2 * time.Second,
		SendTimeout:    20 * time.Millisecond,
	}
}

// newTestChannel creates a channel that is not initialized yet
func newTestChannel(t *testing.T, role types.ProcessRole, prefix string, started bool) (*Channel, *process.Runtime) {
	t.Helper()
	rt := process.NewRuntime(role, prefix)
	if started {
		rt.MarkStartupComplete()
	}
	ch, err := New(testChannelConfig(), rt, logger.Discard())
	require.NoError(t, err)
	return ch, rt
}

func initChannel(t *testing.T, ch *Channel) *Channel {
	t.Helper()
	require.NoError(t, ch.Init(context.Background()))
	t.Cleanup(func() { ch.Close() })
	return ch
}

// echoAction replies with the request's name and param
func echoAction(ch *Channel) Action {
	return ActionFunc(func(ctx context.Context, msg *Message, peer string) error {
		defer msg.Close()
		return ch.Reply(ctx, &Message{Name: msg.Name, Param: msg.Param}, peer)
	})
}
