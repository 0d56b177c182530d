package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/slon/sharedmutex/scenario"
)

func TestFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("readers: 8\nwriters: 3\nhold: 5ms\n"), 0o644))

	o := &options{}
	root := newCommand(o)
	require.NoError(t, root.ParseFlags([]string{"--config", path, "--writers", "2", "--duration", "1s"}))

	cfg, err := o.loadConfig(root.Flags())
	require.NoError(t, err)

	want := scenario.DefaultConfig()
	want.Readers = 8
	want.Writers = 2
	want.Hold = 5 * time.Millisecond
	want.Duration = time.Second
	require.Equal(t, want, cfg)
}

func TestInvalidFlags(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"contention", "--readers", "0", "--writers", "0"})
	require.ErrorIs(t, root.Execute(), scenario.ErrInvalidConfig)
}

func TestRunContention(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"contention", "--readers", "2", "--writers", "1", "--duration", "20ms", "--hold", "0s", "--log-level", "error"})
	require.NoError(t, root.Execute())
}

func TestRunStarvationWithWriterPreference(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"starvation", "--readers", "3", "--hold", "0s", "--writer-preference", "--log-level", "error"})
	require.NoError(t, root.Execute())
}

func TestBadLogLevel(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"contention", "--log-level", "loud", "--duration", "10ms"})
	require.Error(t, root.Execute())
}
