package template

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/simflow/simflow/pkg/config"
	"github.com/simflow/simflow/pkg/errdefs"
)

type workflowDoc struct {
	Defaults *projectSectionDoc `yaml:"defaults"`
	Projects []yaml.Node        `yaml:"projects"`
}

type projectSectionDoc struct {
	Steps    []yaml.Node `yaml:"steps"`
	Vars     []yaml.Node `yaml:"vars"`
	TmpFiles []yaml.Node `yaml:"tmpfiles"`
}

type projectDecl struct {
	Name          string `yaml:"name" validate:"required"`
	Subdir        string `yaml:"subdir"`
	ScenariosFile string `yaml:"scenarios-file"`

	projectSectionDoc `yaml:",inline"`
}

// LoadWorkflowFile reads and resolves a workflow file. Conditional wrappers
// in any list are evaluated against the store using the given section.
func LoadWorkflowFile(path string, store *config.Store, section string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.NewTemplateError(fmt.Sprintf("cannot read workflow file %s", path), err).
			WithCode(errdefs.CodeFormat)
	}
	return LoadWorkflow(data, store, section)
}

// LoadWorkflow parses a workflow document and merges its defaults section
// into each project declaration. Default steps are kept distinct from
// project steps because step merging is scheduling-sensitive and happens
// during planning; vars and tmpFiles are merged here.
func LoadWorkflow(data []byte, store *config.Store, section string) (*Workflow, error) {
	var doc workflowDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errdefs.NewTemplateError("malformed workflow document", err).
			WithCode(errdefs.CodeFormat)
	}

	var defaults projectSectionDoc
	if doc.Defaults != nil {
		defaults = *doc.Defaults
	}
	defaultSteps, err := decodeSteps(defaults.Steps, store, section)
	if err != nil {
		return nil, err
	}
	defaultVars, err := decodeVars(defaults.Vars, store, section)
	if err != nil {
		return nil, err
	}
	defaultTmpFiles, err := decodeTmpFiles(defaults.TmpFiles, store, section)
	if err != nil {
		return nil, err
	}

	wf := &Workflow{index: map[string]*Project{}}

	projNodes, err := flattenNodes(doc.Projects, store, section)
	if err != nil {
		return nil, err
	}
	for i := range projNodes {
		var decl projectDecl
		if err := projNodes[i].Decode(&decl); err != nil {
			return nil, errdefs.NewTemplateError("malformed project declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		if err := validate.Struct(&decl); err != nil {
			return nil, errdefs.NewTemplateError("invalid project declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		if _, exists := wf.index[decl.Name]; exists {
			return nil, errdefs.NewTemplateError("project is declared twice", nil).
				WithCode(errdefs.CodeDuplicateName).
				WithName(decl.Name)
		}

		steps, err := decodeSteps(decl.Steps, store, section)
		if err != nil {
			return nil, err
		}
		vars, err := decodeVars(decl.Vars, store, section)
		if err != nil {
			return nil, err
		}
		tmpFiles, err := decodeTmpFiles(decl.TmpFiles, store, section)
		if err != nil {
			return nil, err
		}

		project := &Project{
			Name:          decl.Name,
			Subdir:        decl.Subdir,
			ScenariosFile: decl.ScenariosFile,
			DefaultSteps:  defaultSteps,
			Steps:         steps,
			Vars:          mergeVars(defaultVars, vars),
			TmpFiles:      mergeTmpFiles(defaultTmpFiles, tmpFiles),
		}
		if project.Subdir == "" {
			project.Subdir = project.Name
		}

		wf.Projects = append(wf.Projects, project)
		wf.index[project.Name] = project
	}

	return wf, nil
}

func decodeSteps(nodes []yaml.Node, store *config.Store, section string) ([]StepDecl, error) {
	flat, err := flattenNodes(nodes, store, section)
	if err != nil {
		return nil, err
	}
	out := make([]StepDecl, 0, len(flat))
	for i := range flat {
		var decl StepDecl
		if err := flat[i].Decode(&decl); err != nil {
			return nil, errdefs.NewTemplateError("malformed step declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		if err := validate.Struct(&decl); err != nil {
			return nil, errdefs.NewTemplateError("invalid step declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		switch decl.RunFor {
		case "", RunForAll, RunForBaseline, RunForPolicy:
		default:
			return nil, errdefs.NewTemplateError(
				fmt.Sprintf("step runFor must be all, baseline, or policy, not %q", decl.RunFor), nil).
				WithCode(errdefs.CodeFormat).
				WithName(decl.Name)
		}
		if decl.RunFor == "" {
			decl.RunFor = RunForAll
		}
		out = append(out, decl)
	}
	return out, nil
}

func decodeVars(nodes []yaml.Node, store *config.Store, section string) ([]VarDecl, error) {
	flat, err := flattenNodes(nodes, store, section)
	if err != nil {
		return nil, err
	}
	out := make([]VarDecl, 0, len(flat))
	for i := range flat {
		var decl VarDecl
		if err := flat[i].Decode(&decl); err != nil {
			return nil, errdefs.NewTemplateError("malformed variable declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		if err := validate.Struct(&decl); err != nil {
			return nil, errdefs.NewTemplateError("invalid variable declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		out = append(out, decl)
	}
	return out, nil
}

func decodeTmpFiles(nodes []yaml.Node, store *config.Store, section string) ([]TmpFileDecl, error) {
	flat, err := flattenNodes(nodes, store, section)
	if err != nil {
		return nil, err
	}
	out := make([]TmpFileDecl, 0, len(flat))
	for i := range flat {
		var decl TmpFileDecl
		if err := flat[i].Decode(&decl); err != nil {
			return nil, errdefs.NewTemplateError("malformed temporary-file declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		if err := validate.Struct(&decl); err != nil {
			return nil, errdefs.NewTemplateError("invalid temporary-file declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		out = append(out, decl)
	}
	return out, nil
}

// mergeVars keeps default declaration order, with a project declaration of
// the same name replacing the default in place. New project variables follow.
func mergeVars(defaults, overrides []VarDecl) []VarDecl {
	out := make([]VarDecl, len(defaults))
	copy(out, defaults)

	pos := make(map[string]int, len(out))
	for i, v := range out {
		pos[v.Name] = i
	}
	for _, v := range overrides {
		if i, ok := pos[v.Name]; ok {
			out[i] = v
			continue
		}
		pos[v.Name] = len(out)
		out = append(out, v)
	}
	return out
}

// mergeTmpFiles merges project temporary-file declarations into the
// defaults by varName. A replace declaration discards the default text
// entirely; otherwise tagged project lines supersede same-tagged default
// lines and untagged lines are appended.
func mergeTmpFiles(defaults, overrides []TmpFileDecl) []TmpFileDecl {
	out := make([]TmpFileDecl, len(defaults))
	copy(out, defaults)

	pos := make(map[string]int, len(out))
	for i, t := range out {
		pos[t.VarName] = i
	}
	for _, t := range overrides {
		i, ok := pos[t.VarName]
		if !ok {
			pos[t.VarName] = len(out)
			out = append(out, t)
			continue
		}
		if t.Replace {
			out[i] = t
			continue
		}
		merged := out[i]
		merged.Dir = orDefault(t.Dir, merged.Dir)
		if t.Eval != nil {
			merged.Eval = t.Eval
		}
		if t.Delete != nil {
			merged.Delete = t.Delete
		}
		merged.Text = mergeText(merged.Text, t.Text)
		out[i] = merged
	}
	return out
}

func mergeText(defaults, overrides []TextEntry) []TextEntry {
	out := make([]TextEntry, len(defaults))
	copy(out, defaults)

	pos := make(map[string]int, len(out))
	for i, e := range out {
		if e.Tag != "" {
			pos[e.Tag] = i
		}
	}
	for _, e := range overrides {
		if e.Tag != "" {
			if i, ok := pos[e.Tag]; ok {
				out[i] = e
				continue
			}
			pos[e.Tag] = len(out)
		}
		out = append(out, e)
	}
	return out
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
