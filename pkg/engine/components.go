package engine

import (
	"github.com/simflow/simflow/pkg/errdefs"
)

// Component is one named entry of a scenario's configuration, in order.
type Component struct {
	Name    string `json:"name"`
	File    string `json:"file"`
	Dynamic bool   `json:"dynamic,omitempty"`
}

// ComponentList is an ordered collection of uniquely named components.
// Order is significant: later components override earlier ones in the
// downstream simulator, so every mutation preserves relative order.
type ComponentList struct {
	items []Component
	index map[string]int
}

// NewComponentList returns an empty list.
func NewComponentList() *ComponentList {
	return &ComponentList{index: map[string]int{}}
}

// Add appends a component. Adding a name that is already present is an
// error; use Replace to change an existing component's file.
func (l *ComponentList) Add(c Component) error {
	if _, exists := l.index[c.Name]; exists {
		return errdefs.NewTemplateError("component already present", nil).
			WithCode(errdefs.CodeDuplicateName).
			WithName(c.Name)
	}
	l.index[c.Name] = len(l.items)
	l.items = append(l.items, c)
	return nil
}

// InsertAfter places a component immediately after the named anchor.
func (l *ComponentList) InsertAfter(after string, c Component) error {
	if _, exists := l.index[c.Name]; exists {
		return errdefs.NewTemplateError("component already present", nil).
			WithCode(errdefs.CodeDuplicateName).
			WithName(c.Name)
	}
	pos, ok := l.index[after]
	if !ok {
		return errdefs.NewTemplateError("insertion anchor not found", nil).
			WithCode(errdefs.CodeUnknownComponent).
			WithName(after)
	}
	l.items = append(l.items, Component{})
	copy(l.items[pos+2:], l.items[pos+1:])
	l.items[pos+1] = c
	l.reindex(pos + 1)
	return nil
}

// Replace swaps the named component's definition, keeping its position.
func (l *ComponentList) Replace(c Component) error {
	pos, ok := l.index[c.Name]
	if !ok {
		return errdefs.NewTemplateError("cannot replace unknown component", nil).
			WithCode(errdefs.CodeUnknownComponent).
			WithName(c.Name)
	}
	l.items[pos] = c
	return nil
}

// Delete removes the named component.
func (l *ComponentList) Delete(name string) error {
	pos, ok := l.index[name]
	if !ok {
		return errdefs.NewTemplateError("cannot delete unknown component", nil).
			WithCode(errdefs.CodeUnknownComponent).
			WithName(name)
	}
	l.items = append(l.items[:pos], l.items[pos+1:]...)
	delete(l.index, name)
	l.reindex(pos)
	return nil
}

// Get returns the named component.
func (l *ComponentList) Get(name string) (Component, bool) {
	pos, ok := l.index[name]
	if !ok {
		return Component{}, false
	}
	return l.items[pos], true
}

// Len returns the number of components.
func (l *ComponentList) Len() int { return len(l.items) }

// Names returns component names in list order.
func (l *ComponentList) Names() []string {
	names := make([]string, len(l.items))
	for i, c := range l.items {
		names[i] = c.Name
	}
	return names
}

// Components returns a copy of the entries in list order.
func (l *ComponentList) Components() []Component {
	out := make([]Component, len(l.items))
	copy(out, l.items)
	return out
}

// Clone returns an independent copy.
func (l *ComponentList) Clone() *ComponentList {
	c := &ComponentList{
		items: make([]Component, len(l.items)),
		index: make(map[string]int, len(l.index)),
	}
	copy(c.items, l.items)
	for name, pos := range l.index {
		c.index[name] = pos
	}
	return c
}

func (l *ComponentList) reindex(from int) {
	for i := from; i < len(l.items); i++ {
		l.index[l.items[i].Name] = i
	}
}
