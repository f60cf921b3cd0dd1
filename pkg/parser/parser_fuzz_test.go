package parser_test

import (
	"testing"

	"github.com/thomasrohde/chrono/pkg/parser"
)

// FuzzParse feeds random inputs to the parser to catch panics.
// The parser returns diagnostics for invalid input and never panics.
func FuzzParse(f *testing.F) {
	seeds := []string{
		// Minimal valid program
		`42`,
		// Assignments
		`x <- 1
x`,
		`x = 2; y <<- x`,
		// Functions
		`f <- function(a, b = 1, ...) a + b
f(1, b = 2)`,
		// Control flow
		`a <- 1; while (a < 4) a <- a + 1; a`,
		`if (TRUE) 1 else 2`,
		`for (i in c(1, 2, 3)) print(i)`,
		// Blocks
		`{ a <- 1
b <- 2 }`,
		// Requests
		`con ? { $x + 1 }`,
		`quote(a + b)`,
		`tryCatch(expr = stop("x"), catch = 1)`,
		`x[2] ^ -1 %% 3`,
		// Edge cases
		``,
		`(`,
		`)`,
		`{`,
		`function(`,
		`if`,
		`f(a = )`,
		`1 <- 2`,
		`? ?`,
		`,,,`,
		`x[`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Parse panicked on input %q: %v", input, r)
				}
			}()
			parser.Parse(input, "fuzz.r")
		}()
	})
}
