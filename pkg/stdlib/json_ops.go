package stdlib

import (
	"github.com/thomasrohde/chrono/pkg/diagnostics"
	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// toJSON(x) → character
func stdlibToJSON(c *evaluator.Call) (evaluator.Value, error) {
	b, err := evaluator.ValueToJSON(c.Arg("x"))
	if err != nil {
		return nil, c.Errorf(diagnostics.ENotTransmissible, "%s", err.Error())
	}
	return evaluator.NewString(string(b)), nil
}

// fromJSON(x) → value
func stdlibFromJSON(c *evaluator.Call) (evaluator.Value, error) {
	s, err := c.String("x")
	if err != nil {
		return nil, err
	}
	v, err := evaluator.ValueFromJSON([]byte(s))
	if err != nil {
		return nil, c.Errorf(diagnostics.EArgType, "invalid JSON value: %s", err.Error())
	}
	return v, nil
}
