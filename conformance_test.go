package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thomasrohde/chrono/internal/testutil"
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
	"github.com/thomasrohde/chrono/pkg/runtime"
)

// scenarioOutput is what a scenario produced.
type scenarioOutput struct {
	exitCode int
	stdout   string
	stderr   string
	diags    []diagnostics.Diagnostic
}

func TestConformance(t *testing.T) {
	dirs, err := testutil.ListScenarios(testutil.ScenariosDir)
	if err != nil {
		t.Fatalf("listing scenarios: %v", err)
	}
	if len(dirs) == 0 {
		t.Fatal("no scenarios found")
	}

	for _, dir := range dirs {
		t.Run(filepath.Base(dir), func(t *testing.T) {
			scenario, err := testutil.LoadScenario(dir)
			if err != nil {
				t.Fatalf("failed to load scenario: %v", err)
			}

			source, filename, err := testutil.ReadProgramFile(dir, scenario.Cmd)
			if err != nil {
				t.Fatalf("failed to read program file: %v", err)
			}

			var out scenarioOutput
			switch scenario.Cmd[0] {
			case "run":
				out = runRunScenario(t, source, filename, scenario)
			case "check":
				out = runCheckScenario(source, filename)
			case "fmt":
				out = runFmtScenario(source, filename)
			case "session":
				out = runSessionScenario(t, scenario)
			default:
				t.Skipf("unsupported command: %s", scenario.Cmd[0])
			}
			checkExpectations(t, out, scenario)
		})
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runRunScenario(t *testing.T, source, filename string, scenario *testutil.Scenario) scenarioOutput {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rt := runtime.New(runtime.WithOutput(&stdout, &stderr), runtime.WithLogger(quietLogger()))

	ctx := context.Background()
	if scenario.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(scenario.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	result, execErr := rt.Run(ctx, source, filename)

	out := scenarioOutput{}
	var diagErr *runtime.DiagnosticError
	var evalErr *evaluator.EvalError
	switch {
	case execErr == nil:
		switch {
		case result.Value == nil:
		case hasFlag(scenario.Cmd, "--json"):
			b, err := evaluator.ValueToJSON(result.Value)
			if err != nil {
				t.Fatalf("failed to serialize result: %v", err)
			}
			stdout.Write(b)
		case result.Visible:
			fmt.Fprintln(&stdout, evaluator.Display(result.Value))
		}
	case errors.As(execErr, &diagErr):
		out.exitCode = 2
		out.diags = diagErr.Diagnostics
		stderr.WriteString(diagnostics.FormatDiagnostics(diagErr.Diagnostics, false))
	case errors.As(execErr, &evalErr):
		out.exitCode = exitCodeForError(evalErr.Code)
		out.diags = []diagnostics.Diagnostic{evalErr.Diagnostic()}
		stderr.WriteString(diagnostics.FormatWithSource(evalErr.Diagnostic(), source))
	case errors.Is(execErr, evaluator.ErrQuit):
	default:
		t.Fatalf("unexpected error type: %v", execErr)
	}
	out.stdout = stdout.String()
	out.stderr = stderr.String()
	return out
}

func hasFlag(cmd []string, flag string) bool {
	for _, arg := range cmd {
		if arg == flag {
			return true
		}
	}
	return false
}

func runCheckScenario(source, filename string) scenarioOutput {
	rt := runtime.New(runtime.WithOutput(io.Discard, io.Discard), runtime.WithLogger(quietLogger()))
	diags := rt.Check(source, filename)
	if len(diags) > 0 {
		return scenarioOutput{exitCode: 2, diags: diags, stderr: diagnostics.FormatDiagnostics(diags, false)}
	}
	return scenarioOutput{stdout: "[]\n"}
}

func runFmtScenario(source, filename string) scenarioOutput {
	rt := runtime.New(runtime.WithOutput(io.Discard, io.Discard), runtime.WithLogger(quietLogger()))
	formatted, err := rt.Format(source, filename)
	var diagErr *runtime.DiagnosticError
	if errors.As(err, &diagErr) {
		return scenarioOutput{exitCode: 2, diags: diagErr.Diagnostics, stderr: diagnostics.FormatDiagnostics(diagErr.Diagnostics, false)}
	}
	return scenarioOutput{stdout: formatted}
}

// runSessionScenario connects a console node to a peer over an in-memory
// network and feeds it the scenario lines one at a time.
func runSessionScenario(t *testing.T, scenario *testutil.Scenario) scenarioOutput {
	t.Helper()
	nw := testutil.NewNetwork()
	var stdout, stderr, peerOut bytes.Buffer

	endA, endB := nw.Endpoint("console"), nw.Endpoint("peer")
	a := runtime.New(runtime.WithTransport(endA), runtime.WithOutput(&stdout, &stderr), runtime.WithLogger(quietLogger()))
	b := runtime.New(runtime.WithTransport(endB), runtime.WithOutput(&peerOut, &peerOut), runtime.WithLogger(quietLogger()))
	endA.Attach(a.HandleEvent)
	endB.Attach(b.HandleEvent)

	settle := func() {
		t.Helper()
		if _, err := nw.Run(); err != nil {
			t.Fatalf("network: %v", err)
		}
	}
	for _, line := range scenario.PeerSetup {
		if err := b.Eval(line); err != nil {
			t.Fatalf("peer setup %q: %v", line, err)
		}
	}
	conn, err := a.Connect(context.Background(), "peer")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	a.Console().Add("peer", conn)
	settle()

	out := scenarioOutput{}
	for _, line := range scenario.Stdin {
		err := a.Eval(line)
		settle()
		if errors.Is(err, evaluator.ErrQuit) {
			break
		}
		if err != nil {
			out.exitCode = 4
			fmt.Fprintln(&stderr, err)
			break
		}
	}
	out.stdout = stdout.String()
	out.stderr = stderr.String()
	return out
}

func checkExpectations(t *testing.T, out scenarioOutput, scenario *testutil.Scenario) {
	t.Helper()
	exp := scenario.Expect

	if exp.ExitCode != out.exitCode {
		t.Errorf("exit code: got %d, want %d (stderr: %s)", out.exitCode, exp.ExitCode, out.stderr)
	}
	if exp.StdoutText != nil && *exp.StdoutText != out.stdout {
		t.Errorf("stdout:\n  got:  %q\n  want: %q", out.stdout, *exp.StdoutText)
	}
	if exp.StdoutContains != "" && !strings.Contains(out.stdout, exp.StdoutContains) {
		t.Errorf("stdout should contain %q, got: %s", exp.StdoutContains, out.stdout)
	}
	if exp.StderrText != nil && *exp.StderrText != out.stderr {
		t.Errorf("stderr:\n  got:  %q\n  want: %q", out.stderr, *exp.StderrText)
	}
	if exp.StderrContains != "" && !strings.Contains(out.stderr, exp.StderrContains) {
		t.Errorf("stderr should contain %q, got: %s", exp.StderrContains, out.stderr)
	}

	if exp.StdoutJSON != nil {
		expected := normalizeJSON(t, exp.StdoutJSON)
		actual := normalizeJSON(t, json.RawMessage(out.stdout))
		if expected != actual {
			t.Errorf("stdout JSON:\n  got:  %s\n  want: %s", actual, expected)
		}
	}

	if exp.StderrJSONSubset != nil {
		var expectedSubset []map[string]any
		if err := json.Unmarshal(exp.StderrJSONSubset, &expectedSubset); err != nil {
			t.Fatalf("failed to parse expected stderr JSON subset: %v", err)
		}
		diagsJSON, _ := json.Marshal(out.diags)
		var actualDiags []map[string]any
		if err := json.Unmarshal(diagsJSON, &actualDiags); err != nil {
			t.Fatalf("failed to parse actual diagnostics: %v", err)
		}
		for _, expected := range expectedSubset {
			found := false
			for _, actual := range actualDiags {
				if isSubset(expected, actual) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("stderr JSON subset not found: %v", expected)
			}
		}
	}
}

func exitCodeForError(code string) int {
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

func normalizeJSON(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("failed to parse JSON: %v (raw: %s)", err, string(raw))
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to re-marshal JSON: %v", err)
	}
	return string(b)
}

// isSubset checks if expected is a subset of actual (for JSON comparison).
func isSubset(expected, actual any) bool {
	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, ev := range e {
			av, exists := a[k]
			if !exists {
				return false
			}
			if !isSubset(ev, av) {
				return false
			}
		}
		return true

	case []any:
		a, ok := actual.([]any)
		if !ok {
			return false
		}
		if len(e) > len(a) {
			return false
		}
		for i, ev := range e {
			if !isSubset(ev, a[i]) {
				return false
			}
		}
		return true

	case nil:
		return actual == nil

	default:
		return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
	}
}

func TestScenariosExist(t *testing.T) {
	root := testutil.ScenariosDir
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("scenarios directory not found: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("scenarios path is not a directory: %s", root)
	}
}
