package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"playground/internal/fstree"
	"playground/internal/messages"
	"playground/internal/sandbox"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(Config{Root: t.TempDir(), ProbeInterval: 20 * time.Millisecond}, startNATS(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func collect(t *testing.T, p sandbox.Process) []string {
	t.Helper()
	var lines []string
	timeout := time.After(10 * time.Second)
	for {
		select {
		case line, ok := <-p.Output():
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-timeout:
			t.Fatal("process output never closed")
		}
	}
}

func TestMountWritesTree(t *testing.T) {
	rt := newRuntime(t)
	tree, err := fstree.Build([]fstree.Entry{
		{Path: "/src/pages/index.astro", Contents: "<h1/>"},
		{Path: "/package.json", Contents: "{}"},
	})
	require.NoError(t, err)
	tree["empty"] = &fstree.Node{Directory: fstree.Tree{}}

	require.NoError(t, rt.Mount(context.Background(), tree, "projects/project-0"))

	data, err := os.ReadFile(filepath.Join(rt.Root(), "projects/project-0/src/pages/index.astro"))
	require.NoError(t, err)
	assert.Equal(t, "<h1/>", string(data))
	info, err := os.Stat(filepath.Join(rt.Root(), "projects/project-0/empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	single, mp := fstree.Single("projects/project-0", "/src/pages/index.astro", "<h2/>")
	require.NoError(t, rt.Mount(context.Background(), single, mp))
	data, err = os.ReadFile(filepath.Join(rt.Root(), "projects/project-0/src/pages/index.astro"))
	require.NoError(t, err)
	assert.Equal(t, "<h2/>", string(data))
	_, err = os.Stat(filepath.Join(rt.Root(), "projects/project-0/package.json"))
	assert.NoError(t, err, "siblings survive an overlapping mount")
}

func TestMountStaysInsideRoot(t *testing.T) {
	rt := newRuntime(t)
	tree := fstree.Tree{"escape.txt": {File: &fstree.File{Contents: "x"}}}

	require.NoError(t, rt.Mount(context.Background(), tree, "../../outside"))

	_, err := os.Stat(filepath.Join(rt.Root(), "outside", "escape.txt"))
	assert.NoError(t, err)
}

func TestSpawnOutputAndExit(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, rt.Mount(context.Background(), fstree.Tree{
		".env": {File: &fstree.File{Contents: "GREETING=hello"}},
	}, "work"))

	p, err := rt.Spawn(context.Background(), "sh", []string{"-c", `echo "$GREETING"; echo "port {port} $PORT"; echo oops >&2`}, sandbox.SpawnOptions{Cwd: "work"})
	require.NoError(t, err)

	lines := collect(t, p)
	code, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	require.Len(t, lines, 3)
	assert.Contains(t, lines, "hello")
	assert.Contains(t, lines, "oops")
	for _, l := range lines {
		var port, env int
		if n, _ := fmt.Sscanf(l, "port %d %d", &port, &env); n == 2 {
			assert.Equal(t, port, env)
			assert.Greater(t, port, 0)
		}
	}
}

func TestSpawnExitCode(t *testing.T) {
	rt := newRuntime(t)
	p, err := rt.Spawn(context.Background(), "sh", []string{"-c", "exit 3"}, sandbox.SpawnOptions{})
	require.NoError(t, err)
	collect(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestKillStopsProcessGroup(t *testing.T) {
	rt := newRuntime(t)
	// The background sleep inherits stdout; output only closes once it is gone too.
	p, err := rt.Spawn(context.Background(), "sh", []string{"-c", "sleep 30 & echo started; wait"}, sandbox.SpawnOptions{})
	require.NoError(t, err)

	select {
	case line := <-p.Output():
		assert.Equal(t, "started", line)
	case <-time.After(10 * time.Second):
		t.Fatal("process never started")
	}

	start := time.Now()
	p.Kill()
	collect(t, p)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := p.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEqual(t, 0, code)
	assert.Less(t, time.Since(start), 10*time.Second)

	p.Kill()
}

func TestOnServerReady(t *testing.T) {
	rt := newRuntime(t)
	got := make(chan string, 1)
	stop, err := rt.OnServerReady(func(port int, url string) {
		got <- strconv.Itoa(port) + " " + url
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, rt.publisher.PublishEvent(context.Background(), messages.NewServerReadyEvent(3000, "http://localhost:3000")))

	select {
	case v := <-got:
		assert.Equal(t, "3000 http://localhost:3000", v)
	case <-time.After(5 * time.Second):
		t.Fatal("no server-ready delivered")
	}
}

func TestMergeEnvPrecedence(t *testing.T) {
	t.Setenv("PLAYGROUND_TEST_VAR", "os")
	env := mergeEnv(map[string]string{"PLAYGROUND_TEST_VAR": "dotenv", "A": "1"}, map[string]string{"A": "2"}, 4321)
	assert.Equal(t, "dotenv", env["PLAYGROUND_TEST_VAR"])
	assert.Equal(t, "2", env["A"])
	assert.Equal(t, "4321", env["PORT"])
}
