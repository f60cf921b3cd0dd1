package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/thomasrohde/chrono/pkg/config"
	"github.com/thomasrohde/chrono/pkg/evaluator"
	"github.com/thomasrohde/chrono/pkg/runtime"
	"github.com/thomasrohde/chrono/pkg/transport"
)

type nodeFlags struct {
	configPath string
	listen     string
	peers      []string
	tracePath  string
}

func parseNodeFlags(args []string) (nodeFlags, error) {
	var f nodeFlags
	for i := 0; i < len(args); i++ {
		next := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s needs a value", args[i])
			}
			i++
			return args[i], nil
		}
		var err error
		switch args[i] {
		case "--config":
			f.configPath, err = next()
		case "--listen":
			f.listen, err = next()
		case "--peer":
			var p string
			p, err = next()
			f.peers = append(f.peers, p)
		case "--trace":
			f.tracePath, err = next()
		default:
			err = fmt.Errorf("unknown option %s", args[i])
		}
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

// node is a runtime on a TCP transport, with the configured peers dialed
// and bound as peer1, peer2, ... in the console frame.
type node struct {
	cfg   *config.Config
	log   *slog.Logger
	tcp   *transport.TCP
	rt    *runtime.Runtime
	trace *traceWriter
}

func startNode(ctx context.Context, f nodeFlags) (*node, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.listen != "" {
		cfg.Listen = f.listen
	}
	cfg.Peers = append(cfg.Peers, f.peers...)

	n := &node{cfg: cfg, log: newLogger(cfg)}
	n.tcp = transport.NewTCP(transport.WithLogger(n.log))
	opts := []runtime.Option{
		runtime.WithConfig(cfg),
		runtime.WithLogger(n.log),
		runtime.WithTransport(n.tcp),
	}
	if f.tracePath != "" {
		if n.trace, err = newTraceWriter(f.tracePath); err != nil {
			n.tcp.Close()
			return nil, err
		}
		opts = append(opts, runtime.WithTrace(n.trace.Write))
	}
	n.rt = runtime.New(opts...)

	if cfg.Listen != "" {
		addr, err := n.tcp.Listen(cfg.Listen)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("listen: %w", err)
		}
		n.log.Info("listening", slog.String("addr", addr.String()))
		fmt.Fprintf(os.Stderr, "listening on %s\n", addr)
	}
	for i, addr := range cfg.Peers {
		conn, err := n.rt.Connect(ctx, addr)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("peer %s: %w", addr, err)
		}
		n.rt.Console().Add(fmt.Sprintf("peer%d", i+1), conn)
	}
	return n, nil
}

func (n *node) Close() {
	if err := n.tcp.Close(); err != nil {
		n.log.Debug("closing transport", slog.Any("error", err))
	}
	if n.trace != nil {
		n.trace.Close()
	}
}

// exitCodeForServe maps the error that ended an event loop to an exit code.
func exitCodeForServe(err error) int {
	switch {
	case err == nil, errors.Is(err, evaluator.ErrQuit), errors.Is(err, context.Canceled):
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", err)
	return 4
}

// cmdServe runs a node without a console until interrupted or until a
// peer request evaluates q().
func cmdServe(args []string) int {
	f, err := parseNodeFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: chrono serve [--listen <addr>] [--peer <addr>]... [--config <path>] [--trace <file>]\nerror: %s\n", err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n, err := startNode(ctx, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}
	defer n.Close()
	if n.cfg.Listen == "" && len(n.cfg.Peers) == 0 {
		fmt.Fprintln(os.Stderr, "error: nothing to serve: set listen or peers")
		return 1
	}
	return exitCodeForServe(n.rt.Serve(ctx, n.tcp.Events(), nil))
}

// cmdRepl runs an interactive console. Lines are read with liner on their
// own goroutine and evaluated by the event loop, so results of remote
// requests are printed whenever they arrive.
func cmdRepl(args []string) int {
	f, err := parseNodeFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: chrono repl [--listen <addr>] [--peer <addr>]... [--config <path>] [--trace <file>]\nerror: %s\n", err)
		return 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := startNode(ctx, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}
	defer n.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(true)

	history := expandHome(n.cfg.HistoryFile)
	if history != "" {
		if hf, err := os.Open(history); err == nil {
			if _, err := line.ReadHistory(hf); err != nil {
				n.log.Debug("reading history", slog.String("file", history), slog.Any("error", err))
			}
			hf.Close()
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			input, err := line.Prompt(n.cfg.Prompt)
			switch {
			case errors.Is(err, liner.ErrPromptAborted):
				if !n.rt.Interrupt() {
					fmt.Fprintln(os.Stderr, "(use q() or Ctrl-D to leave)")
				}
				continue
			case errors.Is(err, io.EOF):
				return
			case err != nil:
				n.log.Warn("reading console", slog.Any("error", err))
				return
			}
			if strings.TrimSpace(input) == "" {
				continue
			}
			line.AppendHistory(input)
			select {
			case lines <- input:
			case <-ctx.Done():
				return
			}
		}
	}()

	code := exitCodeForServe(n.rt.Serve(ctx, n.tcp.Events(), lines))

	if history != "" {
		if err := os.MkdirAll(filepath.Dir(history), 0o755); err == nil {
			if hf, err := os.Create(history); err == nil {
				if _, err := line.WriteHistory(hf); err != nil {
					n.log.Debug("writing history", slog.String("file", history), slog.Any("error", err))
				}
				hf.Close()
			}
		}
	}
	return code
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
