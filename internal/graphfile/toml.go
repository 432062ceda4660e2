package graphfile

import (
	"fmt"

	toml "github.com/pelletier/go-toml/v2"
)

type tomlGraph struct {
	Name  string     `toml:"name"`
	Tasks []tomlTask `toml:"task"`
}

type tomlTask struct {
	ID        *int64  `toml:"id"`
	Name      string  `toml:"name"`
	DependsOn []int64 `toml:"depends_on"`
}

func parseTOML(data []byte, filename string) (*Spec, error) {
	var g tomlGraph
	if err := toml.Unmarshal(data, &g); err != nil {
		return nil, &ValidationError{SourceFile: filename, Err: fmt.Errorf("parsing TOML: %w", err)}
	}

	spec := &Spec{Name: g.Name}
	for i, t := range g.Tasks {
		label := fmt.Sprintf("#%d", i+1)
		if t.ID == nil {
			return nil, &ValidationError{SourceFile: filename, Task: label, Err: ErrMissingID}
		}
		id, err := toID(*t.ID, filename, label)
		if err != nil {
			return nil, err
		}
		deps, err := toIDs(t.DependsOn, filename, fmt.Sprint(id))
		if err != nil {
			return nil, err
		}
		spec.Tasks = append(spec.Tasks, TaskSpec{ID: id, Name: t.Name, DependsOn: deps})
	}
	return spec, nil
}
