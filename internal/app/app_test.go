package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/config"
	"github.com/johnrirwin/topicbuddy/internal/events"
	"github.com/johnrirwin/topicbuddy/internal/models"
)

const appTestFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Build log</title>
<link>https://example.com</link>
<item>
<title>Older post</title>
<link>https://example.com/posts/1</link>
<guid>post-1</guid>
<pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
</item>
<item>
<title>Newer post</title>
<link>https://example.com/posts/2</link>
<guid>post-2</guid>
<pubDate>Tue, 03 Jan 2006 15:04:05 GMT</pubDate>
</item>
</channel>
</rss>`

func newTestConfig(t *testing.T, feedURL, mode string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	personas := "personas:\n" +
		"  - id: 1\n" +
		"    name: Builders\n" +
		"    sources:\n" +
		"      - id: 10\n" +
		"        type: rss_feed\n" +
		"        name: Build Log\n" +
		"        enabled: true\n" +
		"        config:\n" +
		"          url: " + feedURL + "\n"
	path := filepath.Join(dir, "personas.yaml")
	if err := os.WriteFile(path, []byte(personas), 0o644); err != nil {
		t.Fatalf("write personas: %v", err)
	}

	return &config.Config{
		Server:  config.ServerConfig{HTTPAddr: "127.0.0.1:0", RateLimitDur: time.Millisecond, EnableManualSync: true},
		Cache:   config.CacheConfig{Backend: "memory", SnapshotTTL: time.Hour},
		Logging: config.LoggingConfig{Level: "error"},
		Sync:    config.SyncConfig{Mode: mode, RunOnce: true, PersonasFile: path},
		Sources: config.SourcesConfig{Timeout: 5 * time.Second, MaxItems: 10, DetailDelay: time.Millisecond},
	}
}

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(appTestFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_Defaults(t *testing.T) {
	srv := newFeedServer(t)
	app, err := New(newTestConfig(t, srv.URL, "cache"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	if app.db != nil {
		t.Error("empty database host should select the in-memory store")
	}
	if _, ok := app.Events.(events.NopPublisher); !ok {
		t.Errorf("Events = %T, want NopPublisher without brokers", app.Events)
	}
	if app.Scheduler != nil {
		t.Error("empty schedule should not create a scheduler")
	}
	if app.syncLimiter != nil {
		t.Error("zero manual sync window should leave the trigger unthrottled")
	}
}

func TestNew_BadPersonasFile(t *testing.T) {
	cfg := newTestConfig(t, "https://example.com/rss", "cache")
	if err := os.WriteFile(cfg.Sync.PersonasFile, []byte("personas: [\n"), 0o644); err != nil {
		t.Fatalf("write personas: %v", err)
	}

	if _, err := New(cfg); err == nil {
		t.Error("New() should fail on a malformed personas file")
	}
}

func TestRun_CacheMode(t *testing.T) {
	srv := newFeedServer(t)
	app, err := New(newTestConfig(t, srv.URL, "cache"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	feed := app.Orchestrator.PersonaFeed(context.Background(), 1)
	if len(feed) != 2 {
		t.Fatalf("len(feed) = %d, want 2", len(feed))
	}
	if feed[0].OriginalID != "post-2" || feed[1].OriginalID != "post-1" {
		t.Errorf("feed order = [%s %s], want [post-2 post-1]", feed[0].OriginalID, feed[1].OriginalID)
	}
	if feed[0].SourceName != "RSS" {
		t.Errorf("SourceName = %q, want RSS", feed[0].SourceName)
	}

	status := app.Orchestrator.Status()
	if status.IsSyncing || status.LastMessage != "Sync completed" {
		t.Errorf("status = %+v, want idle with Sync completed", status)
	}
}

func TestRun_PersistMode(t *testing.T) {
	srv := newFeedServer(t)
	app, err := New(newTestConfig(t, srv.URL, "persist"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := app.Run(ctx); err != nil {
			t.Fatalf("Run() #%d error = %v", i+1, err)
		}
	}

	counts, err := app.topics.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[models.TopicStatusNew] != 2 {
		t.Errorf("new topics = %d, want 2 after repeated runs", counts[models.TopicStatusNew])
	}

	topic, err := app.topics.FindByOriginalID(ctx, "post-1")
	if err != nil || topic == nil {
		t.Fatalf("FindByOriginalID() = %v, %v", topic, err)
	}
	if topic.SourceConfigID == nil || *topic.SourceConfigID != 10 {
		t.Errorf("SourceConfigID = %v, want 10", topic.SourceConfigID)
	}
}

func TestHandler_ServesDashboard(t *testing.T) {
	srv := newFeedServer(t)
	app, err := New(newTestConfig(t, srv.URL, "cache"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	w := httptest.NewRecorder()
	app.HTTPServer.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/feed?persona_id=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"original_id":"post-2"`) {
		t.Errorf("body = %s, want it to contain post-2", w.Body.String())
	}
}

func TestShutdown_WaitsForRunningSync(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(appTestFeed))
	}))
	defer srv.Close()
	var releaseOnce sync.Once
	defer releaseOnce.Do(func() { close(release) })

	app, err := New(newTestConfig(t, srv.URL, "cache"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !app.Orchestrator.Start(context.Background()) {
		t.Fatal("Start() should accept the first run")
	}
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Two callers, as with a signal handler racing the main goroutine.
	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_ = app.Shutdown(ctx)
			done <- struct{}{}
		}()
	}

	select {
	case <-done:
		t.Fatal("Shutdown() returned while a sync was still running")
	case <-time.After(100 * time.Millisecond):
	}

	releaseOnce.Do(func() { close(release) })
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Shutdown() did not return after the sync finished")
		}
	}

	if app.Orchestrator.Status().IsSyncing {
		t.Error("sync should have finished before Shutdown() returned")
	}
	if got := app.Orchestrator.PersonaFeed(context.Background(), 1); len(got) != 2 {
		t.Errorf("len(feed) = %d, want 2 from the completed run", len(got))
	}
}
