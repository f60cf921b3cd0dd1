// Command chrono is the chrono CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/thomasrohde/chrono/pkg/config"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
	"github.com/thomasrohde/chrono/pkg/formatter"
	"github.com/thomasrohde/chrono/pkg/help"
	"github.com/thomasrohde/chrono/pkg/runtime"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chrono <command> [options]")
		fmt.Fprintln(os.Stderr, "commands: run, repl, serve, check, fmt, trace, config, help")
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "serve":
		os.Exit(cmdServe(os.Args[2:]))
	case "check":
		os.Exit(cmdCheck(os.Args[2:]))
	case "fmt":
		os.Exit(cmdFmt(os.Args[2:]))
	case "trace":
		os.Exit(cmdTrace(os.Args[2:]))
	case "config":
		os.Exit(cmdConfig(os.Args[2:]))
	case "help", "--help", "-h":
		os.Exit(cmdHelp(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		os.Exit(1)
	}
}

func cmdRun(args []string) int {
	var file, configPath, tracePath string
	pretty := false
	jsonOutput := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--pretty":
			pretty = true
		case "--json":
			jsonOutput = true
		case "--config":
			if i+1 < len(args) {
				i++
				configPath = args[i]
			}
		case "--trace":
			if i+1 < len(args) {
				i++
				tracePath = args[i]
			}
		default:
			if !strings.HasPrefix(args[i], "-") || args[i] == "-" {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: chrono run <file> [--pretty] [--json] [--config <path>] [--trace <file.jsonl>]")
		return 1
	}

	source, filename, exitCode := readSource(file, pretty)
	if exitCode != 0 {
		return exitCode
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}

	opts := []runtime.Option{runtime.WithConfig(cfg), runtime.WithLogger(newLogger(cfg))}
	if tracePath != "" {
		tw, err := newTraceWriter(tracePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
			return 1
		}
		defer tw.Close()
		opts = append(opts, runtime.WithTrace(tw.Write))
	}
	rt := runtime.New(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	result, execErr := rt.Run(ctx, source, filename)

	if execErr != nil {
		return reportRunError(execErr, source, pretty)
	}

	if result.Value != nil && (result.Visible || jsonOutput) {
		if jsonOutput {
			jsonBytes, err := evaluator.ValueToJSON(result.Value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error serializing result: %s\n", err)
				return 4
			}
			fmt.Println(string(jsonBytes))
		} else {
			fmt.Println(evaluator.Display(result.Value))
		}
	}
	return 0
}

func reportRunError(err error, source string, pretty bool) int {
	var diagErr *runtime.DiagnosticError
	var evalErr *evaluator.EvalError
	var suspended *evaluator.SuspendedError
	switch {
	case errors.As(err, &diagErr):
		fmt.Fprintln(os.Stderr, formatDiags(diagErr.Diagnostics, source, pretty))
		return 2
	case errors.As(err, &suspended):
		diag := diagnostics.MakeDiag(diagnostics.ERemote, err.Error(), nil, "scripts cannot wait on peers; use chrono repl or chrono serve")
		fmt.Fprintln(os.Stderr, formatDiags([]diagnostics.Diagnostic{diag}, source, pretty))
		return 3
	case errors.Is(err, evaluator.ErrQuit):
		return 0
	case errors.As(err, &evalErr):
		fmt.Fprintln(os.Stderr, formatDiags([]diagnostics.Diagnostic{evalErr.Diagnostic()}, source, pretty))
		return exitCodeForDiag(evalErr.Code)
	}
	fmt.Fprintln(os.Stderr, err.Error())
	return 4
}

func cmdCheck(args []string) int {
	var file string
	pretty := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--pretty":
			pretty = true
		default:
			if !strings.HasPrefix(args[i], "-") || args[i] == "-" {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: chrono check <file> [--pretty]")
		return 1
	}

	source, filename, exitCode := readSource(file, pretty)
	if exitCode != 0 {
		return exitCode
	}

	rt := runtime.New(runtime.WithLogger(discardLogger()))
	diags := rt.Check(source, filename)
	if len(diags) > 0 {
		fmt.Fprintln(os.Stderr, formatDiags(diags, source, pretty))
		return 2
	}

	if pretty {
		fmt.Println("No errors found.")
	} else {
		fmt.Println("[]")
	}
	return 0
}

func cmdFmt(args []string) int {
	var file string
	write := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--write":
			write = true
		default:
			if !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: chrono fmt <file> [--write]")
		return 1
	}

	source, _, exitCode := readSource(file, false)
	if exitCode != 0 {
		return exitCode
	}

	rt := runtime.New(runtime.WithLogger(discardLogger()))
	formatted, fmtErr := rt.Format(source, file)
	if fmtErr != nil {
		var diagErr *runtime.DiagnosticError
		if errors.As(fmtErr, &diagErr) {
			fmt.Fprintln(os.Stderr, diagnostics.FormatDiagnostics(diagErr.Diagnostics, false))
			return 2
		}
		fmt.Fprintln(os.Stderr, fmtErr.Error())
		return 2
	}

	if formatter.HasComments(source) {
		fmt.Fprintln(os.Stderr, "warning: comments are not preserved by the formatter")
	}

	if write {
		if err := os.WriteFile(file, []byte(formatted), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing file: %s\n", err)
			return 1
		}
	} else {
		fmt.Print(formatted)
	}
	return 0
}

func cmdHelp(args []string) int {
	showIndex := false
	topic := ""
	for _, arg := range args {
		if arg == "--index" {
			showIndex = true
		} else if !strings.HasPrefix(arg, "-") {
			topic = arg
		}
	}

	if showIndex {
		if topic != "stdlib" {
			fmt.Fprintln(os.Stderr, "error: --index is only supported for the stdlib topic (chrono help stdlib --index)")
			return 1
		}
		fmt.Print(help.StdlibIndex())
		return 0
	}

	if topic == "" {
		fmt.Print(help.QUICKREF)
		return 0
	}

	_, content, err := help.MatchTopic(topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\nAvailable topics: %s\n", err, strings.Join(help.TopicList, ", "))
		return 1
	}
	fmt.Print(content)
	return 0
}

// cmdConfig prints the effective configuration and where it came from.
func cmdConfig(args []string) int {
	var configPath string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			i++
			configPath = args[i]
		}
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}
	b, err := cfg.Marshal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}
	if cfg.Path != "" {
		fmt.Printf("# from %s\n", cfg.Path)
	} else {
		fmt.Println("# defaults")
	}
	fmt.Print(string(b))
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Load(cwd)
}

func newLogger(cfg *config.Config) *slog.Logger {
	lvl, err := cfg.Level()
	if err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func formatDiags(diags []diagnostics.Diagnostic, source string, pretty bool) string {
	if !pretty {
		return diagnostics.FormatDiagnostics(diags, false)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = diagnostics.FormatWithSource(d, source)
	}
	return strings.Join(parts, "\n\n")
}

func readSource(file string, pretty bool) (string, string, int) {
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading stdin: %s\n", err)
			return "", "", 1
		}
		return string(data), "<stdin>", 0
	}

	source, err := os.ReadFile(file)
	if err != nil {
		diag := diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf("cannot read file: %s", file), nil, "")
		fmt.Fprintln(os.Stderr, diagnostics.FormatDiagnostics([]diagnostics.Diagnostic{diag}, pretty))
		return "", "", 1
	}
	return string(source), file, 0
}

func exitCodeForDiag(code string) int {
	switch code {
	case diagnostics.ERemote, diagnostics.ETimeout, diagnostics.ENotTransmissible:
		return 3
	case diagnostics.EBudget, diagnostics.EDepth:
		return 5
	case diagnostics.EInterrupted:
		return 130
	default:
		return 4
	}
}
