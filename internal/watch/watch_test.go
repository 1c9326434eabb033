package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/rapport/internal/fsutil"
	"github.com/rcliao/rapport/internal/logging"
)

func TestWatch_CoalescesEdits(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	fired := make(chan struct{}, 4)

	w := New(dir, []string{"USER.md"}, func() {
		calls.Add(1)
		fired <- struct{}{}
	}, logging.Discard())
	w.debounce = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx))
	defer w.Close()

	path := filepath.Join(dir, "USER.md")
	for i := 0; i < 3; i++ {
		require.NoError(t, fsutil.WriteFileAtomic(path, []byte("edit")))
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("onChange not called")
	}
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32

	w := New(dir, []string{"USER.md"}, func() { calls.Add(1) }, logging.Discard())
	w.debounce = 50 * time.Millisecond
	require.NoError(t, w.Watch(context.Background()))
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClose_Unstarted(t *testing.T) {
	assert.NoError(t, New(t.TempDir(), nil, func() {}, logging.Discard()).Close())
}
