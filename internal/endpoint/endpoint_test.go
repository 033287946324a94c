package endpoint

import (
	"context"
	"testing"
	"time"

	"playground/internal/sandbox/sandboxtest"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePort(t *testing.T) {
	tests := []struct {
		line string
		port int
		ok   bool
	}{
		{"  ┃ Local    http://localhost:3000/", 3000, true},
		{"\x1b[32mhttp://localhost:\x1b[1m4321\x1b[22m/\x1b[39m", 4321, true},
		{"listening on localhost:8080/ and more", 8080, true},
		{"localhost:3000", 0, false},
		{"localhost:/", 0, false},
		{"localhost:abc/", 0, false},
		{"localhost:70000/", 0, false},
		{"localhost:0/", 0, false},
		{"no port here", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			port, ok := ParsePort(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestMemoryRegistryFirstWins(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	require.NoError(t, r.Record(ctx, 3000, "http://a"))
	require.NoError(t, r.Record(ctx, 3000, "http://b"))

	url, ok, err := r.Lookup(ctx, 3000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://a", url)

	_, ok, err = r.Lookup(ctx, 3001)
	require.NoError(t, err)
	assert.False(t, ok)
}

func resolveAsync(t *testing.T, w *Watch, output <-chan string) <-chan string {
	t.Helper()
	got := make(chan string, 1)
	go func() {
		url, err := w.Await(context.Background(), output)
		assert.NoError(t, err)
		got <- url
	}()
	return got
}

func waitURL(t *testing.T, got <-chan string) string {
	t.Helper()
	select {
	case url := <-got:
		return url
	case <-time.After(5 * time.Second):
		t.Fatal("resolution did not complete")
		return ""
	}
}

func TestResolveReadyBeforeOutput(t *testing.T) {
	src := sandboxtest.New()
	w, err := NewResolver(NewMemoryRegistry()).Watch(src)
	require.NoError(t, err)
	defer w.Close()

	src.EmitServerReady(3000, "http://localhost:3000")
	output := make(chan string, 1)
	got := resolveAsync(t, w, output)
	output <- "  Local  http://localhost:3000/"

	assert.Equal(t, "http://localhost:3000", waitURL(t, got))
}

func TestResolveOutputBeforeReady(t *testing.T) {
	src := sandboxtest.New()
	reg := NewMemoryRegistry()
	w, err := NewResolver(reg).Watch(src)
	require.NoError(t, err)
	defer w.Close()

	output := make(chan string, 1)
	got := resolveAsync(t, w, output)
	output <- "  Local  http://localhost:3000/"

	src.EmitServerReady(4000, "http://localhost:4000")
	src.EmitServerReady(3000, "http://localhost:3000")

	assert.Equal(t, "http://localhost:3000", waitURL(t, got))
	assert.Equal(t, 2, reg.Len(), "foreign ports are recorded too")
}

func TestResolveLaterAnnouncementWins(t *testing.T) {
	src := sandboxtest.New()
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Record(context.Background(), 5000, "http://localhost:5000"))
	w, err := NewResolver(reg).Watch(src)
	require.NoError(t, err)
	defer w.Close()

	output := make(chan string, 2)
	output <- "Port localhost:4999/ is in use"
	output <- "  Local  http://localhost:5000/"

	assert.Equal(t, "http://localhost:5000", waitURL(t, resolveAsync(t, w, output)))
}

func TestResolveTimeout(t *testing.T) {
	src := sandboxtest.New()
	r := NewResolver(NewMemoryRegistry(), WithTimeout(50*time.Millisecond))

	_, err := r.Resolve(context.Background(), src, make(chan string))
	assert.ErrorIs(t, err, ErrResolveTimeout)
	assert.Equal(t, 0, src.Listeners(), "subscription removed")
}

func TestResolveOutputClosed(t *testing.T) {
	output := make(chan string, 1)
	output <- "starting"
	close(output)

	var lines []string
	r := NewResolver(NewMemoryRegistry(), WithLineHandler(func(l string) { lines = append(lines, l) }))
	_, err := r.Resolve(context.Background(), sandboxtest.New(), output)
	assert.ErrorIs(t, err, ErrOutputClosed)
	assert.Equal(t, []string{"starting"}, lines)
}

func TestWatchWithoutSource(t *testing.T) {
	_, err := NewResolver(NewMemoryRegistry()).Watch(nil)
	assert.Error(t, err)
}

func TestKVRegistry(t *testing.T) {
	ns, err := server.NewServer(&server.Options{
		Host: "127.0.0.1", Port: -1, JetStream: true, StoreDir: t.TempDir(), NoLog: true, NoSigs: true,
	})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	defer ns.Shutdown()

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	ctx := context.Background()
	reg, err := NewKVRegistry(ctx, js)
	require.NoError(t, err)

	require.NoError(t, reg.Record(ctx, 3000, "http://localhost:3000"))
	require.NoError(t, reg.Record(ctx, 3000, "http://elsewhere:3000"))

	url, ok, err := reg.Lookup(ctx, 3000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:3000", url)

	_, ok, err = reg.Lookup(ctx, 3001)
	require.NoError(t, err)
	assert.False(t, ok)

	// A registry opened by a later process starts empty.
	reopened, err := NewKVRegistry(ctx, js)
	require.NoError(t, err)
	_, ok, err = reopened.Lookup(ctx, 3000)
	require.NoError(t, err)
	assert.False(t, ok)
}
