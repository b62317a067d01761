package template

import (
	"gopkg.in/yaml.v3"

	"github.com/simflow/simflow/pkg/config"
	"github.com/simflow/simflow/pkg/errdefs"
)

// Document shapes for the action variants. Each list entry is a single-key
// mapping naming the variant; the key's value carries the fields.
type addActionDoc struct {
	Name    string `yaml:"name" validate:"required"`
	File    string `yaml:"file" validate:"required"`
	Dynamic bool   `yaml:"dynamic"`
}

type insertActionDoc struct {
	Name    string `yaml:"name" validate:"required"`
	After   string `yaml:"after" validate:"required"`
	File    string `yaml:"file" validate:"required"`
	Dynamic bool   `yaml:"dynamic"`
}

type deleteActionDoc struct {
	Name string `yaml:"name" validate:"required"`
}

type functionActionDoc struct {
	Name    string `yaml:"name" validate:"required"`
	Args    string `yaml:"args"`
	Dynamic bool   `yaml:"dynamic"`
}

type ifActionDoc struct {
	Value1  string      `yaml:"value1" validate:"required"`
	Value2  string      `yaml:"value2" validate:"required"`
	Matches *bool       `yaml:"matches"`
	Then    []yaml.Node `yaml:"then"`
	Else    []yaml.Node `yaml:"else"`
}

type actionEntry struct {
	Add      *addActionDoc      `yaml:"add"`
	Insert   *insertActionDoc   `yaml:"insert"`
	Replace  *addActionDoc      `yaml:"replace"`
	Delete   *deleteActionDoc   `yaml:"delete"`
	Function *functionActionDoc `yaml:"function"`
	If       *ifActionDoc       `yaml:"if"`
}

// decodeActions turns the raw entries of an action list into Action values,
// resolving conditional wrappers first and recursing into If branches.
func decodeActions(nodes []yaml.Node, store *config.Store, section string) ([]Action, error) {
	flat, err := flattenNodes(nodes, store, section)
	if err != nil {
		return nil, err
	}

	var out []Action
	for i := range flat {
		var entry actionEntry
		if err := flat[i].Decode(&entry); err != nil {
			return nil, errdefs.NewTemplateError("malformed action entry", err).
				WithCode(errdefs.CodeFormat)
		}
		action, err := entry.toAction(store, section)
		if err != nil {
			return nil, err
		}
		out = append(out, action)
	}
	return out, nil
}

func (e *actionEntry) toAction(store *config.Store, section string) (Action, error) {
	variants := 0
	for _, set := range []bool{
		e.Add != nil, e.Insert != nil, e.Replace != nil,
		e.Delete != nil, e.Function != nil, e.If != nil,
	} {
		if set {
			variants++
		}
	}
	if variants != 1 {
		return Action{}, errdefs.NewTemplateError(
			"action entry must name exactly one of add, insert, replace, delete, function, if", nil).
			WithCode(errdefs.CodeFormat)
	}

	switch {
	case e.Add != nil:
		if err := validate.Struct(e.Add); err != nil {
			return Action{}, invalidAction("add", err)
		}
		return Action{Kind: ActionAdd, Name: e.Add.Name, File: e.Add.File, Dynamic: e.Add.Dynamic}, nil

	case e.Insert != nil:
		if err := validate.Struct(e.Insert); err != nil {
			return Action{}, invalidAction("insert", err)
		}
		return Action{
			Kind: ActionInsert, Name: e.Insert.Name, After: e.Insert.After,
			File: e.Insert.File, Dynamic: e.Insert.Dynamic,
		}, nil

	case e.Replace != nil:
		if err := validate.Struct(e.Replace); err != nil {
			return Action{}, invalidAction("replace", err)
		}
		return Action{Kind: ActionReplace, Name: e.Replace.Name, File: e.Replace.File, Dynamic: e.Replace.Dynamic}, nil

	case e.Delete != nil:
		if err := validate.Struct(e.Delete); err != nil {
			return Action{}, invalidAction("delete", err)
		}
		return Action{Kind: ActionDelete, Name: e.Delete.Name}, nil

	case e.Function != nil:
		if err := validate.Struct(e.Function); err != nil {
			return Action{}, invalidAction("function", err)
		}
		return Action{
			Kind: ActionFunction, Name: e.Function.Name,
			Args: e.Function.Args, Dynamic: e.Function.Dynamic,
		}, nil

	default:
		if err := validate.Struct(e.If); err != nil {
			return Action{}, invalidAction("if", err)
		}
		then, err := decodeActions(e.If.Then, store, section)
		if err != nil {
			return Action{}, err
		}
		els, err := decodeActions(e.If.Else, store, section)
		if err != nil {
			return Action{}, err
		}
		return Action{
			Kind:    ActionIf,
			Value1:  e.If.Value1,
			Value2:  e.If.Value2,
			Matches: e.If.Matches == nil || *e.If.Matches,
			Then:    then,
			Else:    els,
		}, nil
	}
}

func invalidAction(kind string, err error) error {
	return errdefs.NewTemplateError("invalid "+kind+" action", err).
		WithCode(errdefs.CodeFormat)
}
