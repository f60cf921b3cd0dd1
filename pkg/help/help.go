// Package help holds the built-in reference shown by `chrono help`.
package help

import (
	"fmt"
	"strings"

	"github.com/thomasrohde/chrono/pkg/stdlib"
)

// Version is the language reference version.
const Version = "v0.3"

// TopicList is the display order of the help topics.
var TopicList = []string{"syntax", "types", "remote", "timers", "stdlib", "flow", "config", "diagnostics", "examples"}

// QUICKREF is printed by `chrono help` without a topic.
var QUICKREF = `chrono ` + Version + ` quick reference

  x <- expr            assign in the current frame (also x = expr)
  x <<- expr           assign where x is already bound, else in the root
  function(a, b = 1) body
  if (c) a else b      while (c) body      for (i in xs) body
  peer ? expr          evaluate expr on a peer, $x ships the local x
  tryCatch(expr, handler)   handler sees .Last.error

Commands:
  chrono run <file>        run a script
  chrono repl              interactive console
  chrono serve             accept peers and evaluate their requests
  chrono check <file>      parse and validate without running
  chrono fmt <file>        reformat a script
  chrono trace <file>      summarize a trace written with --trace
  chrono config            show the effective configuration
  chrono help <topic>      more on a topic

Topics: ` + strings.Join(TopicList, ", ") + `
`

// Topics maps each topic name to its text.
var Topics = map[string]string{
	"syntax": `Syntax

Statements are separated by newlines or ';'. Blocks use { }.
Identifiers may contain '.' and '_'. Comments start with '#' and run to the
end of the line.

Operators, loosest first:
  ?                    remote request (right associative)
  <- = <<-             assignment
  | &  !               logical
  == != < <= > >=      comparison
  + -  * / %  ^        arithmetic
  x[i]                 index
  -x                   negation

quote(expr) returns expr unevaluated; eval(expr) evaluates quoted code.
`,
	"types": `Types

NULL, logical, numeric, character, time, duration and interval vectors.
Vectors are immutable and may carry names.
list(...)            ordered name/value pairs; names need not be unique
ts(times, values)    a time series
function             closures capture their defining frame
connection, timer, future and language values cannot be sent to a peer.
`,
	"remote": `Remote evaluation

  p <- connect("host", 7000)
  x <- (p ? mean($values))     # x holds a future
  x + 1                        # waits for the response, then resumes

The body of a request runs in the peer's working frame for this connection.
Names written $name are looked up locally and sent with the request.
Using a future before its response arrives parks the evaluation; the
console stays usable meanwhile. A lost connection fails the future with
E_REMOTE; no response within the configured TTL fails it with E_TIMEOUT.
is.future(x) and resolved(x) inspect a future without waiting.
peers() lists open connections.
`,
	"timers": `Timers

  t <- timer(5, print("tick"))   # runs once, five seconds from now
  cancel(t)                      # TRUE when the timer had not fired

The expression runs in the frame that created the timer. Its result is not
printed; errors are.
`,
	"stdlib": `Standard library

Run 'chrono help stdlib --index' for the full list of functions.
Runtime functions: timer, cancel, connect, peers, .stats.
Control functions: tryCatch, quote, eval, q.
`,
	"flow": `Control flow

if (cond) a else b     cond must be a single logical value
while (cond) body
for (i in xs) body     iterates over a vector or list
tryCatch(expr, handler)
stop("message")        raises E_USER
q()                    leaves the console or server
`,
	"config": `Configuration

chrono reads .chrono.yaml in the working directory, else
~/.chrono/config.yaml, else built-in defaults.

  listen: ":7000"
  peers: ["10.0.0.2:7000"]
  prompt: "> "
  historyFile: ~/.chrono/history
  logLevel: warn            # debug, info, warn, error
  limits:
    maxDepth: 512
    maxSteps: 0             # 0 means unlimited
  gc:
    interval: 5s
    requestTTL: 30s
    responseTTL: 30s
    stateTTL: 5m
`,
	"diagnostics": `Diagnostics

E_LEX E_PARSE            source does not parse
E_UNBOUND                name not found
E_NOT_FUNCTION           call of a non-function
E_ARG_DUP E_ARG_UNUSED E_ARG_MISSING E_ARG_TYPE
E_TYPE E_SUBSCRIPT       bad operand or index
E_DEPTH E_BUDGET         recursion or step limit
E_USER                   stop()
E_REMOTE                 peer failure or lost connection
E_TIMEOUT                response timeout
E_NOT_TRANSMISSIBLE      value cannot be sent to a peer
E_INTERRUPTED            interrupted from the console
`,
	"examples": `Examples

  # moving sum over the last hour on a peer
  s <- connect("store", 7000)
  w <- interval(Sys.time() - as.duration(3600), Sys.time())
  s ? sum(window(prices, $w))

  # periodic work
  tick <- function() { print(Sys.time()); t <<- timer(60, tick()) }
  tick()
`,
}

// MatchTopic finds a topic by exact name or unique prefix.
func MatchTopic(query string) (string, string, error) {
	if content, ok := Topics[query]; ok {
		return query, content, nil
	}
	var matches []string
	for _, name := range TopicList {
		if query != "" && strings.HasPrefix(name, query) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], Topics[matches[0]], nil
	case 0:
		return "", "", fmt.Errorf("unknown topic %q", query)
	}
	return "", "", fmt.Errorf("ambiguous topic %q: %s", query, strings.Join(matches, ", "))
}

var stdlibGroups = []struct {
	name  string
	funcs []string
}{
	{"Core", []string{"identity", "invisible", "print", "stop", "rm", "exists"}},
	{"Lists", []string{"c", "list", "append", "length", "names", "seq", "seq_len"}},
	{"Strings", []string{"paste", "paste0", "nchar", "toupper", "tolower"}},
	{"Predicates", []string{"is.null", "is.function", "is.numeric", "is.character", "is.list", "identical", "typeof"}},
	{"Futures", []string{"is.future", "resolved"}},
	{"Time", []string{"Sys.time", "as.time", "as.duration", "interval", "ts", "window"}},
	{"Math", []string{"sum", "max", "min", "mean"}},
	{"JSON", []string{"toJSON", "fromJSON"}},
}

// StdlibIndex lists the registered stdlib functions by group.
func StdlibIndex() string {
	reg := stdlib.NewRegistry()
	stdlib.RegisterDefaults(reg)

	seen := make(map[string]bool)
	var b strings.Builder
	b.WriteString("chrono stdlib index\n\n")
	for _, g := range stdlibGroups {
		var names []string
		for _, name := range g.funcs {
			if reg.Get(name) != nil {
				names = append(names, name)
				seen[name] = true
			}
		}
		if len(names) > 0 {
			fmt.Fprintf(&b, "%-12s %s\n", g.name+":", strings.Join(names, " "))
		}
	}
	var other []string
	for _, name := range reg.Names() {
		if !seen[name] {
			other = append(other, name)
		}
	}
	if len(other) > 0 {
		fmt.Fprintf(&b, "%-12s %s\n", "Other:", strings.Join(other, " "))
	}
	fmt.Fprintf(&b, "\nTotal: %d functions\n", len(reg.Names()))
	return b.String()
}
