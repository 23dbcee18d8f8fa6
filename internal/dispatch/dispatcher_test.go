package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulxhy/tubewatch/internal/config"
	"github.com/soulxhy/tubewatch/internal/downloader"
	"github.com/soulxhy/tubewatch/internal/feed"
	"github.com/soulxhy/tubewatch/internal/queue"
	"github.com/soulxhy/tubewatch/internal/storage"
)

type fakeDownloader struct {
	requests []downloader.Request
	task     *downloader.Task
	err      error
}

func (f *fakeDownloader) Download(ctx context.Context, req downloader.Request) (*downloader.Task, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.task, nil
}

type fakeNotifier struct {
	subjects []string
	bodies   []string
	err      error
}

func (f *fakeNotifier) Send(ctx context.Context, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeForwarder struct {
	calls int
	err   error
}

func (f *fakeForwarder) Forward(ctx context.Context, ev feed.Event) error {
	f.calls++
	return f.err
}

func testEvent() feed.Event {
	return feed.Event{
		VideoID:     "dQw4w9WgXcQ",
		ChannelID:   "UCchannel",
		Title:       "Never Gonna Give You Up",
		Description: "Official video.",
		PublishedAt: "2009-10-25T06:57:33+00:00",
		Author:      "Rick Astley",
		VideoURL:    feed.WatchURLPrefix + "dQw4w9WgXcQ",
	}
}

func testDispatcher(t *testing.T, dl *fakeDownloader, n *fakeNotifier, fw *fakeForwarder) (*Dispatcher, *queue.Queue) {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	q := queue.New(db, 24*time.Hour)
	cfg := config.Defaults()
	if fw != nil {
		return New(q, dl, n, fw, cfg), q
	}
	return New(q, dl, n, nil, cfg), q
}

func enqueueAndDispatch(t *testing.T, d *Dispatcher, q *queue.Queue) string {
	t.Helper()
	id, err := q.Enqueue(context.Background(), testEvent())
	require.NoError(t, err)
	require.NoError(t, d.processNext(context.Background()))
	return id
}

func lastLogEntry(t *testing.T, q *queue.Queue) queue.LogEntry {
	t.Helper()
	entries, err := q.RecentLog(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}

func TestDispatchSuccess(t *testing.T) {
	dl := &fakeDownloader{task: &downloader.Task{
		TaskID:     "task-1",
		OutputPath: "/videos/dQw4w9WgXcQ.mp4",
		Filename:   "dQw4w9WgXcQ.mp4",
	}}
	n := &fakeNotifier{}
	d, q := testDispatcher(t, dl, n, nil)

	id := enqueueAndDispatch(t, d, q)

	require.Len(t, dl.requests, 1)
	assert.Equal(t, feed.WatchURLPrefix+"dQw4w9WgXcQ", dl.requests[0].URL)
	assert.Equal(t, "1080p", dl.requests[0].Resolution)
	assert.Equal(t, "mp4", dl.requests[0].Format)

	require.Len(t, n.bodies, 1)
	assert.Contains(t, n.subjects[0], "Never Gonna Give You Up")
	assert.Contains(t, n.bodies[0], "/videos/dQw4w9WgXcQ.mp4")

	e := lastLogEntry(t, q)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, queue.StatusSucceeded, e.Status)
	require.NotNil(t, e.OutputPath)
	assert.Equal(t, "/videos/dQw4w9WgXcQ.mp4", *e.OutputPath)
}

func TestDispatchDownloadFailureSkipsEmail(t *testing.T) {
	dl := &fakeDownloader{err: errors.New("connection refused")}
	n := &fakeNotifier{}
	d, q := testDispatcher(t, dl, n, nil)

	enqueueAndDispatch(t, d, q)

	assert.Empty(t, n.bodies, "email must be skipped when download fails")

	e := lastLogEntry(t, q)
	assert.Equal(t, queue.StatusFailed, e.Status)
	require.NotNil(t, e.LastError)
	assert.Contains(t, *e.LastError, "download failed")
	assert.Nil(t, e.OutputPath)
}

func TestDispatchEmailFailureKeepsDownload(t *testing.T) {
	dl := &fakeDownloader{task: &downloader.Task{
		TaskID:     "task-2",
		OutputPath: "/videos/out.mp4",
	}}
	n := &fakeNotifier{err: errors.New("smtp: 550 rejected")}
	d, q := testDispatcher(t, dl, n, nil)

	enqueueAndDispatch(t, d, q)

	e := lastLogEntry(t, q)
	assert.Equal(t, queue.StatusFailed, e.Status)
	require.NotNil(t, e.LastError)
	assert.Contains(t, *e.LastError, "email failed after successful download")

	// The download side effect is preserved in the log even though the
	// delivery failed.
	require.NotNil(t, e.OutputPath)
	assert.Equal(t, "/videos/out.mp4", *e.OutputPath)
}

func TestDispatchForwardFailureIsBestEffort(t *testing.T) {
	dl := &fakeDownloader{task: &downloader.Task{TaskID: "task-3", OutputPath: "/videos/v.mp4"}}
	n := &fakeNotifier{}
	fw := &fakeForwarder{err: errors.New("workflow endpoint returned 500")}
	d, q := testDispatcher(t, dl, n, fw)

	enqueueAndDispatch(t, d, q)

	assert.Equal(t, 1, fw.calls)
	require.Len(t, n.bodies, 1, "forward failure must not block download/email")
	assert.Equal(t, queue.StatusSucceeded, lastLogEntry(t, q).Status)
}

func TestProcessNextEmptyQueue(t *testing.T) {
	d, _ := testDispatcher(t, &fakeDownloader{}, &fakeNotifier{}, nil)
	require.NoError(t, d.processNext(context.Background()))
}

func TestComposeEmail(t *testing.T) {
	subject, body, err := ComposeEmail(testEvent(), "/videos/dQw4w9WgXcQ.mp4")
	require.NoError(t, err)

	assert.Equal(t, "New video: Never Gonna Give You Up", subject)
	for _, want := range []string{
		"Never Gonna Give You Up",
		"Rick Astley",
		"2009-10-25T06:57:33+00:00",
		feed.WatchURLPrefix + "dQw4w9WgXcQ",
		"Official video.",
		"Downloaded to: /videos/dQw4w9WgXcQ.mp4",
	} {
		assert.Contains(t, body, want)
	}
}

func TestComposeEmailOmitsEmptyDescription(t *testing.T) {
	ev := testEvent()
	ev.Description = ""
	_, body, err := ComposeEmail(ev, "/videos/v.mp4")
	require.NoError(t, err)

	assert.False(t, strings.Contains(body, "\n\n\n"), "empty description should not leave a gap")
}
