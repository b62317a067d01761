package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/simflow/simflow/pkg/errdefs"
)

// Iterator is a declared, finite sequence of substitution values used to
// expand one template node into many concrete instances.
type Iterator struct {
	Name   string `yaml:"name" validate:"required"`
	Type   string `yaml:"type"` // int, float, or list (the default)
	Min    string `yaml:"min"`
	Max    string `yaml:"max"`
	Step   string `yaml:"step"`
	Format string `yaml:"format"`
	Values string `yaml:"values"` // comma-separated, list type only

	values []string
}

func malformed(name, msg string) error {
	return errdefs.NewTemplateError(msg, nil).
		WithCode(errdefs.CodeMalformedIterator).
		WithName(name)
}

// compile validates the declaration and materializes the value sequence.
// Numeric iterators produce the inclusive progression from min to max by
// step (default 1), rendered with the format string or a type-appropriate
// default. List iterators split on commas, preserving empty elements and
// trimming whitespace from non-empty ones.
func (it *Iterator) compile() error {
	switch it.Type {
	case "int":
		if it.Min == "" || it.Max == "" {
			return malformed(it.Name, "int iterator must provide min and max")
		}
		min, err := strconv.Atoi(strings.TrimSpace(it.Min))
		if err != nil {
			return malformed(it.Name, fmt.Sprintf("int iterator min %q is not an integer", it.Min))
		}
		max, err := strconv.Atoi(strings.TrimSpace(it.Max))
		if err != nil {
			return malformed(it.Name, fmt.Sprintf("int iterator max %q is not an integer", it.Max))
		}
		step := 1
		if it.Step != "" {
			if step, err = strconv.Atoi(strings.TrimSpace(it.Step)); err != nil {
				return malformed(it.Name, fmt.Sprintf("int iterator step %q is not an integer", it.Step))
			}
		}
		if step <= 0 {
			return malformed(it.Name, "int iterator step must be positive")
		}
		if min > max {
			return malformed(it.Name, "int iterator min exceeds max")
		}
		format := it.Format
		if format == "" {
			format = "%d"
		}
		for v := min; v <= max; v += step {
			it.values = append(it.values, fmt.Sprintf(format, v))
		}
		return nil

	case "float":
		if it.Min == "" || it.Max == "" {
			return malformed(it.Name, "float iterator must provide min and max")
		}
		min, err := strconv.ParseFloat(strings.TrimSpace(it.Min), 64)
		if err != nil {
			return malformed(it.Name, fmt.Sprintf("float iterator min %q is not a number", it.Min))
		}
		max, err := strconv.ParseFloat(strings.TrimSpace(it.Max), 64)
		if err != nil {
			return malformed(it.Name, fmt.Sprintf("float iterator max %q is not a number", it.Max))
		}
		step := 1.0
		if it.Step != "" {
			if step, err = strconv.ParseFloat(strings.TrimSpace(it.Step), 64); err != nil {
				return malformed(it.Name, fmt.Sprintf("float iterator step %q is not a number", it.Step))
			}
		}
		if step <= 0 {
			return malformed(it.Name, "float iterator step must be positive")
		}
		if min > max {
			return malformed(it.Name, "float iterator min exceeds max")
		}
		format := it.Format
		if format == "" {
			format = "%.1f"
		}
		// Index-based progression with a tolerance on the upper bound so
		// accumulated floating-point error cannot drop the final value.
		for i := 0; ; i++ {
			v := min + float64(i)*step
			if v > max+step*1e-9 {
				break
			}
			it.values = append(it.values, fmt.Sprintf(format, v))
		}
		return nil

	case "", "list":
		if it.Values == "" {
			return malformed(it.Name, "list iterator must provide a values attribute")
		}
		for _, item := range strings.Split(it.Values, ",") {
			it.values = append(it.values, strings.TrimSpace(item))
		}
		return nil

	default:
		return malformed(it.Name, fmt.Sprintf("unknown iterator type %q", it.Type))
	}
}

// Sequence returns the iterator's values in declaration order. The slice is
// shared; callers must not modify it.
func (it *Iterator) Sequence() []string {
	return it.values
}
