package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// traceWriter appends trace events to a file as NDJSON.
type traceWriter struct {
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder
}

func newTraceWriter(path string) (*traceWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	w := bufio.NewWriter(f)
	return &traceWriter{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (t *traceWriter) Write(ev evaluator.TraceEvent) {
	_ = t.enc.Encode(ev)
}

func (t *traceWriter) Close() {
	_ = t.w.Flush()
	_ = t.f.Close()
}

func cmdTrace(args []string) int {
	var file string
	textOutput := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			textOutput = false
		case "--text":
			textOutput = true
		default:
			if !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: chrono trace <file.jsonl> [--json|--text]")
		return 1
	}

	f, err := os.Open(file)
	if err != nil {
		diag := diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf("cannot read file: %s", file), nil, "")
		fmt.Fprintln(os.Stderr, diagnostics.FormatDiagnostics([]diagnostics.Diagnostic{diag}, false))
		return 1
	}
	defer f.Close()

	summary := computeTraceSummary(f)
	if textOutput {
		printTraceSummaryText(os.Stdout, summary)
	} else {
		b, _ := json.Marshal(summary)
		fmt.Println(string(b))
	}
	return 0
}

// TraceSummary aggregates a trace file.
type TraceSummary struct {
	RunID          string         `json:"runId"`
	TotalEvents    int            `json:"totalEvents"`
	States         int            `json:"states"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	Abandoned      int            `json:"abandoned"`
	Parks          int            `json:"parks"`
	Requests       int            `json:"requests"`
	RequestsByPeer map[string]int `json:"requestsByPeer"`
	Calls          map[string]int `json:"calls"`
	Errors         map[string]int `json:"errors"`
	StartTime      string         `json:"startTime,omitempty"`
	EndTime        string         `json:"endTime,omitempty"`
	DurationMs     float64        `json:"durationMs"`
}

type traceEvent struct {
	Event string            `json:"event"`
	RunID string            `json:"runId"`
	TS    string            `json:"ts"`
	Data  map[string]string `json:"data,omitempty"`
}

func computeTraceSummary(r io.Reader) *TraceSummary {
	summary := &TraceSummary{
		RequestsByPeer: make(map[string]int),
		Calls:          make(map[string]int),
		Errors:         make(map[string]int),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event traceEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // skip invalid lines
		}

		summary.TotalEvents++
		if summary.RunID == "" {
			summary.RunID = event.RunID
		}
		if summary.StartTime == "" {
			summary.StartTime = event.TS
		}
		summary.EndTime = event.TS

		switch evaluator.TraceEventType(event.Event) {
		case evaluator.TraceStateStart:
			summary.States++
		case evaluator.TraceStatePark:
			summary.Parks++
		case evaluator.TraceStateEnd:
			switch event.Data["status"] {
			case evaluator.StatusDone.String():
				summary.Completed++
			case evaluator.StatusFailed.String():
				summary.Failed++
				if code := event.Data["code"]; code != "" {
					summary.Errors[code]++
				}
			case "abandoned":
				summary.Abandoned++
			}
		case evaluator.TraceRequest:
			summary.Requests++
			summary.RequestsByPeer[event.Data["peer"]]++
		case evaluator.TraceInvokeStart:
			if name := event.Data["name"]; name != "" {
				summary.Calls[name]++
			}
		}
	}

	if summary.StartTime != "" && summary.EndTime != "" {
		start, err1 := parseTime(summary.StartTime)
		end, err2 := parseTime(summary.EndTime)
		if err1 == nil && err2 == nil {
			summary.DurationMs = float64(end.Sub(start).Milliseconds())
		}
	}
	return summary
}

func printTraceSummaryText(w io.Writer, s *TraceSummary) {
	fmt.Fprintf(w, "Run: %s\n", s.RunID)
	fmt.Fprintf(w, "Events: %d\n", s.TotalEvents)
	fmt.Fprintf(w, "States: %d (%d completed, %d failed, %d abandoned, %d parks)\n",
		s.States, s.Completed, s.Failed, s.Abandoned, s.Parks)
	fmt.Fprintf(w, "Requests: %d\n", s.Requests)
	for _, peer := range sortedKeys(s.RequestsByPeer) {
		fmt.Fprintf(w, "  %s: %d\n", peer, s.RequestsByPeer[peer])
	}
	if len(s.Calls) > 0 {
		fmt.Fprintln(w, "Calls:")
		for _, name := range sortedKeys(s.Calls) {
			fmt.Fprintf(w, "  %s: %d\n", name, s.Calls[name])
		}
	}
	for _, code := range sortedKeys(s.Errors) {
		fmt.Fprintf(w, "Error %s: %d\n", code, s.Errors[code])
	}
	if s.DurationMs > 0 {
		fmt.Fprintf(w, "Duration: %.0fms\n", s.DurationMs)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time: %s", s)
}
