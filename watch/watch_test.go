package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchTriggersReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy: {}\n"), 0o644))

	cfg := DefaultConfig(path)
	cfg.DebounceInterval = 20 * time.Millisecond
	w, err := New(cfg)
	require.NoError(t, err)

	reloaded := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = w.Watch(ctx, func() error {
			select {
			case reloaded <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  limits:\n    max_attempts: 3\n"), 0o644))

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("expected reload callback to fire after debounce interval")
	}

	require.NoError(t, w.Stop())
}

func TestDebouncerCollapsesBurst(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	calls := 0
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		d.Trigger(func() {
			calls++
			close(done)
		})
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected debounced callback to fire")
	}
	assert.Equal(t, 1, calls)
	d.Stop()
}
