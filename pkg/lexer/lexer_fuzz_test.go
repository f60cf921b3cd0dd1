package lexer

import (
	"testing"
)

// FuzzTokenize feeds random inputs to the lexer to catch panics.
// The lexer returns an error for invalid input and never panics.
func FuzzTokenize(f *testing.F) {
	seeds := []string{
		// Keywords
		`function if else while for in`,
		`TRUE FALSE NULL`,
		// Literals
		`42 3.14 1e10 .5 7L`,
		`"hello" 'single' "with\nescape" "quote\""`,
		// Operators
		`+ - * / ^ %% > < >= <= == != ! & && | ||`,
		`<- <<- = ?`,
		// Delimiters
		`{ } [ ] ( ) , ; ...`,
		// Identifiers
		`x foo bar_baz .Last.value is.null`,
		`$x $.hidden`,
		// Comments
		`# this is a comment`,
		// Mixed
		`a <- 1; while (a < 4) a <- a + 1; a`,
		`con ? { $x + 1 }`,
		// Edge cases
		``,
		`   `,
		"\t\n\r",
		`"unterminated`,
		`"""`,
		`@#$^&`,
		`\x00`,
		`%`,
		`$`,
		"(\n)",
		`"unicode: A"`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Tokenize panicked on input %q: %v", input, r)
				}
			}()
			Tokenize(input, "fuzz.r")
		}()
	})
}
