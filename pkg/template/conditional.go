package template

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/simflow/simflow/pkg/config"
	"github.com/simflow/simflow/pkg/errdefs"
)

// Test is a single comparison between a configuration variable and a
// literal value. Both sides are coerced to the declared type before the
// operator is applied.
type Test struct {
	Var   string `yaml:"var"`
	Op    string `yaml:"op"`
	Value string `yaml:"value"`
	Type  string `yaml:"type"`
}

// Condition is a boolean expression tree: exactly one of Test, And, or Or
// is set. And and Or evaluate children left to right with short-circuit
// semantics.
type Condition struct {
	Test *Test       `yaml:"test"`
	And  []Condition `yaml:"and"`
	Or   []Condition `yaml:"or"`
}

type compareFunc func(ordering int, equal bool) bool

// Comparison operators, each with a symbolic and a word-form spelling.
var operators = map[string]compareFunc{
	"=":  func(o int, eq bool) bool { return eq },
	"==": func(o int, eq bool) bool { return eq },
	"eq": func(o int, eq bool) bool { return eq },
	"!=": func(o int, eq bool) bool { return !eq },
	"ne": func(o int, eq bool) bool { return !eq },
	"<":  func(o int, eq bool) bool { return o < 0 },
	"lt": func(o int, eq bool) bool { return o < 0 },
	"<=": func(o int, eq bool) bool { return o <= 0 },
	"le": func(o int, eq bool) bool { return o <= 0 },
	">":  func(o int, eq bool) bool { return o > 0 },
	"gt": func(o int, eq bool) bool { return o > 0 },
	">=": func(o int, eq bool) bool { return o >= 0 },
	"ge": func(o int, eq bool) bool { return o >= 0 },
}

// Eval evaluates the condition against the store, reading variables from
// the given section. A test referencing an undeclared variable is a config
// error, propagated rather than treated as false.
func (c *Condition) Eval(store *config.Store, section string) (bool, error) {
	set := 0
	if c.Test != nil {
		set++
	}
	if len(c.And) > 0 {
		set++
	}
	if len(c.Or) > 0 {
		set++
	}
	if set != 1 {
		return false, errdefs.NewConfigError("condition must have exactly one of test, and, or", nil).
			WithCode(errdefs.CodeFormat)
	}

	switch {
	case c.Test != nil:
		return c.Test.eval(store, section)

	case len(c.And) > 0:
		for i := range c.And {
			ok, err := c.And[i].Eval(store, section)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	default:
		for i := range c.Or {
			ok, err := c.Or[i].Eval(store, section)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

func (t *Test) eval(store *config.Store, section string) (bool, error) {
	value, ok, err := store.Get(section, t.Var)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errdefs.NewConfigError("conditional test references an undeclared variable", nil).
			WithCode(errdefs.CodeUnknownVariable).
			WithName(t.Var).
			WithSection(section)
	}

	op := t.Op
	if op == "" {
		op = "=="
	}
	cmp, ok := operators[op]
	if !ok {
		return false, errdefs.NewConfigError(fmt.Sprintf("unknown comparison operator %q", op), nil).
			WithCode(errdefs.CodeFormat).
			WithName(t.Var)
	}

	ordering, equal, err := compareTyped(value, t.Value, t.Type, t.Var)
	if err != nil {
		return false, err
	}
	return cmp(ordering, equal), nil
}

// compareTyped coerces both sides to the declared type (string by default)
// and returns their ordering and equality.
func compareTyped(varValue, litValue, typeName, varName string) (ordering int, equal bool, err error) {
	coerceErr := func(value string, cause error) error {
		return errdefs.NewConfigError(
			fmt.Sprintf("cannot convert %q to %s in conditional test", value, typeName), cause).
			WithCode(errdefs.CodeCoercionFailed).
			WithName(varName)
	}

	switch typeName {
	case "", "str":
		switch {
		case varValue < litValue:
			return -1, false, nil
		case varValue > litValue:
			return 1, false, nil
		}
		return 0, true, nil

	case "int":
		a, err := strconv.Atoi(varValue)
		if err != nil {
			return 0, false, coerceErr(varValue, err)
		}
		b, err := strconv.Atoi(litValue)
		if err != nil {
			return 0, false, coerceErr(litValue, err)
		}
		return compareOrdered(a, b)

	case "float":
		a, err := strconv.ParseFloat(varValue, 64)
		if err != nil {
			return 0, false, coerceErr(varValue, err)
		}
		b, err := strconv.ParseFloat(litValue, 64)
		if err != nil {
			return 0, false, coerceErr(litValue, err)
		}
		return compareOrdered(a, b)

	case "bool":
		a, err := config.ParseBool(varValue)
		if err != nil {
			return 0, false, coerceErr(varValue, err)
		}
		b, err := config.ParseBool(litValue)
		if err != nil {
			return 0, false, coerceErr(litValue, err)
		}
		return compareOrdered(boolInt(a), boolInt(b))

	default:
		return 0, false, errdefs.NewConfigError(
			fmt.Sprintf("unknown test type %q", typeName), nil).
			WithCode(errdefs.CodeFormat).
			WithName(varName)
	}
}

func compareOrdered[T int | float64](a, b T) (int, bool, error) {
	switch {
	case a < b:
		return -1, false, nil
	case a > b:
		return 1, false, nil
	}
	return 0, true, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// conditionalWrapper is the list-entry form that selects between fragments
// at load time. A comment wrapper suppresses its contents entirely.
type conditionalWrapper struct {
	When *Condition  `yaml:"when"`
	Then []yaml.Node `yaml:"then"`
	Else []yaml.Node `yaml:"else"`
}

// flattenNodes resolves conditional and comment wrappers within a node
// list, returning the concrete entries in order. Wrappers nest: a chosen
// branch is itself flattened.
func flattenNodes(nodes []yaml.Node, store *config.Store, section string) ([]yaml.Node, error) {
	var out []yaml.Node
	for i := range nodes {
		node := nodes[i]
		if node.Kind != yaml.MappingNode {
			out = append(out, node)
			continue
		}

		switch {
		case hasKey(&node, "when"):
			var wrapper conditionalWrapper
			if err := node.Decode(&wrapper); err != nil {
				return nil, errdefs.NewTemplateError("malformed conditional wrapper", err).
					WithCode(errdefs.CodeFormat)
			}
			if wrapper.When == nil {
				return nil, errdefs.NewTemplateError("conditional wrapper is missing its condition", nil).
					WithCode(errdefs.CodeFormat)
			}
			chosen, err := wrapper.When.Eval(store, section)
			if err != nil {
				return nil, err
			}
			branch := wrapper.Then
			if !chosen {
				branch = wrapper.Else
			}
			flat, err := flattenNodes(branch, store, section)
			if err != nil {
				return nil, err
			}
			out = append(out, flat...)

		case hasKey(&node, "comment") && len(node.Content) == 2:
			// Suppressed fragment.

		default:
			out = append(out, node)
		}
	}
	return out, nil
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}
