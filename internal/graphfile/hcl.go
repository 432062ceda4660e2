package graphfile

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

type hclGraph struct {
	Name  *string   `hcl:"name"`
	Tasks []hclTask `hcl:"task,block"`
}

type hclTask struct {
	ID        string  `hcl:"id,label"`
	Name      *string `hcl:"name"`
	DependsOn []int64 `hcl:"depends_on,optional"`
}

func parseHCL(data []byte, filename string) (*Spec, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, &ValidationError{SourceFile: filename, Err: fmt.Errorf("parsing HCL: %w", diags)}
	}

	var g hclGraph
	if diags := gohcl.DecodeBody(file.Body, nil, &g); diags.HasErrors() {
		return nil, &ValidationError{SourceFile: filename, Err: fmt.Errorf("decoding HCL: %w", diags)}
	}

	spec := &Spec{}
	if g.Name != nil {
		spec.Name = *g.Name
	}
	for _, t := range g.Tasks {
		v, err := strconv.ParseInt(t.ID, 10, 64)
		if err != nil {
			return nil, &ValidationError{SourceFile: filename, Task: strconv.Quote(t.ID), Err: fmt.Errorf("%w: %q", ErrInvalidID, t.ID)}
		}
		id, err := toID(v, filename, t.ID)
		if err != nil {
			return nil, err
		}
		deps, err := toIDs(t.DependsOn, filename, t.ID)
		if err != nil {
			return nil, err
		}
		ts := TaskSpec{ID: id, DependsOn: deps}
		if t.Name != nil {
			ts.Name = *t.Name
		}
		spec.Tasks = append(spec.Tasks, ts)
	}
	return spec, nil
}
