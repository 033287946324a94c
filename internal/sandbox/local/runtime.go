// =============================================================================
// Local sandbox runtime – on-disk filesystem, OS processes, NATS ready events
// =============================================================================

package local

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"playground/internal/fstree"
	"playground/internal/messages"
	"playground/internal/sandbox"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/xid"
)

// PortPlaceholder in a spawn argument is replaced by the port allocated for
// the process.
const PortPlaceholder = "{port}"

// Config configures the local runtime.
type Config struct {
	// Root is the directory every mount point and cwd is resolved against.
	Root string
	// PublicHost is the host used in server-ready URLs.
	PublicHost string
	// ProbeInterval is how often a spawned process's port is dialled.
	ProbeInterval time.Duration
}

// Runtime runs processes on the host below a root directory.
type Runtime struct {
	cfg       Config
	nc        *nats.Conn
	publisher *messages.Publisher
	jobs      sync.Map // process id → *process
}

// New creates the root directory and returns a runtime publishing on nc.
func New(cfg Config, nc *nats.Conn) (*Runtime, error) {
	if cfg.Root == "" {
		return nil, errors.New("local runtime: root directory is required")
	}
	if cfg.PublicHost == "" {
		cfg.PublicHost = "localhost"
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 100 * time.Millisecond
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}
	cfg.Root = root

	slog.Info("Local sandbox runtime initialized", "root", root, "host", cfg.PublicHost)
	return &Runtime{cfg: cfg, nc: nc, publisher: messages.NewCorePublisher(nc)}, nil
}

// Boot returns a sandbox.BootFunc creating a local runtime.
func Boot(cfg Config, nc *nats.Conn) sandbox.BootFunc {
	return func(context.Context) (sandbox.Runtime, error) {
		return New(cfg, nc)
	}
}

// Root returns the absolute root directory.
func (r *Runtime) Root() string { return r.cfg.Root }

// -----------------------------------------------------------------------------
// filesystem
// -----------------------------------------------------------------------------

func (r *Runtime) resolve(rel string) (string, error) {
	p, err := securejoin.SecureJoin(r.cfg.Root, rel)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", rel, err)
	}
	return p, nil
}

// Mount writes tree below mountPoint. Paths cannot escape the root.
func (r *Runtime) Mount(ctx context.Context, tree fstree.Tree, mountPoint string) error {
	base, err := r.resolve(mountPoint)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("mount %q: %w", mountPoint, err)
	}
	return r.writeTree(ctx, base, tree)
}

func (r *Runtime) writeTree(ctx context.Context, dir string, tree fstree.Tree) error {
	for name, node := range tree {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := securejoin.SecureJoin(dir, name)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", name, err)
		}
		if node.IsDir() {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", p, err)
			}
			if err := r.writeTree(ctx, p, node.Directory); err != nil {
				return err
			}
			continue
		}
		if err := os.WriteFile(p, []byte(node.File.Contents), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// processes
// -----------------------------------------------------------------------------

type process struct {
	id     string
	output chan string
	done   chan struct{}
	cancel context.CancelFunc

	code int
	err  error
}

func (p *process) ID() string             { return p.id }
func (p *process) Output() <-chan string { return p.output }
func (p *process) Kill()                 { p.cancel() }

func (p *process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.code, p.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// mergeEnv layers the environment: OS env, then the cwd's .env, then explicit
// overrides, then the allocated PORT.
func mergeEnv(dotEnv, overrides map[string]string, port int) map[string]string {
	out := map[string]string{}

	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			out[parts[0]] = parts[1]
		}
	}
	for k, v := range dotEnv {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	out["PORT"] = strconv.Itoa(port)
	out["HOST"] = "127.0.0.1"
	return out
}

// mapToEnv converts map[string]string → []string{"k=v"} for exec.Cmd.Env.
func mapToEnv(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Spawn starts command in opts.Cwd. Every process gets a free port in PORT and
// in place of PortPlaceholder arguments; once something accepts connections on
// it a server-ready event is published.
func (r *Runtime) Spawn(ctx context.Context, command string, args []string, opts sandbox.SpawnOptions) (sandbox.Process, error) {
	dir, err := r.resolve(opts.Cwd)
	if err != nil {
		return nil, err
	}
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("allocate port: %w", err)
	}

	argv := make([]string, len(args))
	for i, a := range args {
		argv[i] = strings.ReplaceAll(a, PortPlaceholder, strconv.Itoa(port))
	}

	dotEnv, _ := godotenv.Read(filepath.Join(dir, ".env"))
	env := mergeEnv(dotEnv, opts.Env, port)

	id := xid.New().String()
	jobCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(jobCtx, command, argv...)
	cmd.Dir = dir
	cmd.Env = mapToEnv(env)
	killProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	slog.Info("Starting sandbox process", "process", id, "cmd", command, "args", argv, "dir", dir, "port", port)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	p := &process{
		id:     id,
		output: make(chan string, 256),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	r.jobs.Store(id, p)

	var pumps sync.WaitGroup
	pumps.Add(2)
	go r.pumpOutput(&pumps, stdout, p, "stdout")
	go r.pumpOutput(&pumps, stderr, p, "stderr")
	go r.waitForExit(ctx, cmd, &pumps, p, command)
	go r.probe(p, port)

	return p, nil
}

// pumpOutput forwards each line of one stream to the process output.
func (r *Runtime) pumpOutput(wg *sync.WaitGroup, rd io.Reader, p *process, stream string) {
	defer wg.Done()
	scanner := bufio.NewScanner(rd)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		p.output <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Scanner error in output pump", "process", p.id, "stream", stream, "err", err)
	}
}

// waitForExit captures process termination and publishes the exit event.
func (r *Runtime) waitForExit(ctx context.Context, cmd *exec.Cmd, pumps *sync.WaitGroup, p *process, command string) {
	pumps.Wait()
	close(p.output)

	err := cmd.Wait()
	exitCode := 0
	var exitError string
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			exitError = err.Error()
			p.err = err
		}
		slog.Warn("Sandbox process exited with error", "process", p.id, "code", exitCode, "err", err)
	} else {
		slog.Info("Sandbox process completed", "process", p.id)
	}
	p.code = exitCode
	close(p.done)

	evt := messages.NewProcessExitEvent(p.id, command, exitCode)
	if exitError != "" {
		evt = evt.WithError(exitError)
	}
	_ = r.publisher.PublishEvent(context.WithoutCancel(ctx), evt)

	p.cancel()
	r.jobs.Delete(p.id)
}

// probe dials the process port until it accepts, then announces it.
func (r *Runtime) probe(p *process, port int) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	ticker := time.NewTicker(r.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}
		conn, err := net.DialTimeout("tcp", addr, r.cfg.ProbeInterval)
		if err != nil {
			continue
		}
		conn.Close()

		url := fmt.Sprintf("http://%s:%d", r.cfg.PublicHost, port)
		evt := messages.NewServerReadyEvent(port, url).WithProcess(p.id)
		if err := r.publisher.PublishEvent(context.Background(), evt); err != nil {
			slog.Error("Failed to publish server-ready", "process", p.id, "port", port, "err", err)
		}
		slog.Info("Sandbox server ready", "process", p.id, "port", port, "url", url)
		return
	}
}

// OnServerReady subscribes fn to every server-ready event on the bus.
func (r *Runtime) OnServerReady(fn func(port int, url string)) (func(), error) {
	sub, err := r.nc.Subscribe(messages.ServerReadySubject, func(m *nats.Msg) {
		var evt messages.ServerReadyEvent
		if err := json.Unmarshal(m.Data, &evt); err != nil {
			slog.Warn("Invalid server-ready payload", "err", err)
			return
		}
		fn(evt.Port, evt.URL)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messages.ServerReadySubject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close kills every running process.
func (r *Runtime) Close() error {
	count := 0
	r.jobs.Range(func(key, value any) bool {
		if p, ok := value.(*process); ok {
			p.cancel()
		}
		r.jobs.Delete(key)
		count++
		return true
	})
	slog.Info("Local sandbox runtime closed", "stopped", count)
	return nil
}
