package web

import (
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// === Mocks ===

type MockWatcher struct {
	events chan fsnotify.Event
	errors chan error
	added  []string
	closed bool
}

func NewMockWatcher() *MockWatcher {
	return &MockWatcher{
		events: make(chan fsnotify.Event),
		errors: make(chan error),
	}
}

func (m *MockWatcher) Add(name string) error {
	m.added = append(m.added, name)
	return nil
}

func (m *MockWatcher) Close() error {
	m.closed = true
	return nil
}

func (m *MockWatcher) Events() chan fsnotify.Event {
	return m.events
}

func (m *MockWatcher) Errors() chan error {
	return m.errors
}

func newLocalListener(t *testing.T) (net.Listener, error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err == nil {
		t.Cleanup(func() { ln.Close() })
	}
	return ln, err
}

func dialReload(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// === Tests ===

func TestReloadHubBroadcast(t *testing.T) {
	hub := NewReloadHub()
	go hub.Run()
	defer hub.Stop()

	ts := httptest.NewServer(hub)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + reloadPath
	a := dialReload(t, url)
	b := dialReload(t, url)
	require.Eventually(t, func() bool { return hub.clientCount() == 2 }, time.Second, 10*time.Millisecond)

	hub.Reload()

	for _, c := range []*websocket.Conn{a, b} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
		mt, msg, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		assert.Equal(t, "reload", string(msg))
	}

	a.Close()
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestReloadHubStop(t *testing.T) {
	hub := NewReloadHub()
	go hub.Run()

	hub.Stop()
	hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.Reload()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Reload blocked after Stop")
	}
}

func TestTemplateReload(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(index, []byte(`v1 {{.Model.arduino_ip}} {{.ReloadPort}}`), 0644))

	srv, err := NewServer(NewPageModel("192.168.1.100", "arduino.local", true), Options{TemplateDir: dir})
	require.NoError(t, err)
	defer srv.Stop()

	watcher := NewMockWatcher()
	reloadLn, err := newLocalListener(t)
	require.NoError(t, err)
	require.NoError(t, srv.EnableReload(dir, watcher, reloadLn))
	assert.Equal(t, []string{dir}, watcher.added)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	port := reloadLn.Addr().(*net.TCPAddr).Port
	_, body := get(t, ts.URL+"/")
	assert.Equal(t, "v1 192.168.1.100 "+strconv.Itoa(port), body)

	ws := dialReload(t, "ws://"+reloadLn.Addr().String()+reloadPath)
	require.Eventually(t, func() bool { return srv.reloadHub.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	// Non-template files are ignored.
	watcher.events <- fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Write}

	require.NoError(t, os.WriteFile(index, []byte(`v2 {{.Model.arduino_ip}}`), 0644))
	watcher.events <- fsnotify.Event{Name: index, Op: fsnotify.Write}

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "reload", string(msg))

	_, body = get(t, ts.URL+"/")
	assert.Equal(t, "v2 192.168.1.100", body)

	srv.Stop()
	assert.True(t, watcher.closed)
}

func TestTemplateReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(index, []byte(`ok {{.Model.arduino_ip}}`), 0644))

	ts, err := newTemplateSet(dir)
	require.NoError(t, err)

	watcher := NewMockWatcher()
	reloaded := make(chan struct{}, 1)
	go watchTemplates(watcher, ts, 10*time.Millisecond, func() { reloaded <- struct{}{} })

	require.NoError(t, os.WriteFile(index, []byte(`{{.Model`), 0644))
	watcher.events <- fsnotify.Event{Name: index, Op: fsnotify.Write}

	select {
	case <-reloaded:
		t.Fatal("broken template must not trigger a reload")
	case <-time.After(100 * time.Millisecond):
	}

	body, err := ts.render(indexTemplate, pageData{Model: NewPageModel("10.0.0.1", "arduino.local", false)})
	require.NoError(t, err)
	assert.Equal(t, "ok 10.0.0.1", string(body))

	close(watcher.events)
}

func TestEnableReloadNeedsDir(t *testing.T) {
	srv, err := NewServer(NewPageModel("192.168.1.100", "arduino.local", true), Options{})
	require.NoError(t, err)

	ln, err := newLocalListener(t)
	require.NoError(t, err)
	assert.Error(t, srv.EnableReload("", NewMockWatcher(), ln))
}

func TestEmbeddedPageHasReloadScript(t *testing.T) {
	ts, err := newTemplateSet("")
	require.NoError(t, err)

	body, err := ts.render(indexTemplate, pageData{
		Model:      NewPageModel("192.168.1.100", "arduino.local", true),
		ReloadPort: 35729,
		ReloadPath: reloadPath,
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), "WebSocket")
	assert.Contains(t, string(body), "35729")
}
