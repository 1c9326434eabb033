package delivery

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/rapport/internal/checkin"
	"github.com/rcliao/rapport/internal/logging"
	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/timewindow"
)

func testRequest(t *testing.T) Request {
	t.Helper()
	h := checkin.Hint{Mode: checkin.Learning, Period: timewindow.Morning, Tone: "light", Focus: "How did the launch go?"}
	return NewRequest(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), "last-used-channel", h)
}

func TestNewRequest(t *testing.T) {
	a := testRequest(t)
	b := testRequest(t)
	assert.Len(t, a.ID, 26)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.ID, b.ID)
	assert.Contains(t, a.Message, "How did the launch go?")
	require.NotNil(t, a.Hint)
}

func TestOutbox(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rel", OutboxFile)
	o := NewOutbox(path, logging.Discard())

	r1, r2 := testRequest(t), testRequest(t)
	assert.Equal(t, model.KindNone, o.Deliver(context.Background(), r1).Kind)
	assert.Equal(t, model.KindNone, o.Deliver(context.Background(), r2).Kind)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var got Request
		require.NoError(t, json.Unmarshal(sc.Bytes(), &got))
		ids = append(ids, got.ID)
		assert.Equal(t, "last-used-channel", got.Destination)
	}
	assert.Equal(t, []string{r1.ID, r2.ID}, ids)
}

func TestOutbox_Unavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	o := NewOutbox(filepath.Join(blocker, OutboxFile), logging.Discard())
	assert.Equal(t, model.KindUnavailable, o.Deliver(context.Background(), testRequest(t)).Kind)
}

func TestWebhook(t *testing.T) {
	got := make(chan Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		var req Request
		json.Unmarshal(b, &req)
		got <- req
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second, logging.Discard())
	r := testRequest(t)
	assert.Equal(t, model.KindNone, w.Deliver(context.Background(), r).Kind)
	w.Wait()

	select {
	case req := <-got:
		assert.Equal(t, r.ID, req.ID)
	case <-time.After(time.Second):
		t.Fatal("webhook not called")
	}
}

func TestWebhook_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	w := NewWebhook(srv.URL, 5*time.Second, logging.Discard())
	start := time.Now()
	w.Deliver(context.Background(), testRequest(t))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestNew(t *testing.T) {
	d, err := New(Options{Kind: "log"}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &Log{}, d)

	d, err = New(Options{OutboxPath: "x"}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &Outbox{}, d)

	_, err = New(Options{Kind: "pigeon"}, logging.Discard())
	assert.Error(t, err)
}
