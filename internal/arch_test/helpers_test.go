package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
)

const modulePath = "github.com/papapumpkin/pulsar"

// pkg is one parsed package directory, test files excluded.
type pkg struct {
	Name    string
	Dir     string
	Files   []*ast.File
	Imports []string // internal package names, sorted
}

func (p *pkg) imports(name string) bool {
	return slices.Contains(p.Imports, name)
}

// moduleDir returns the module root. go test runs in internal/arch_test.
func moduleDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", ".."))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err != nil {
		t.Fatalf("no go.mod at %s: %v", dir, err)
	}
	return dir
}

// loadInternal parses every package under internal/ except this one, keyed
// by directory name.
func loadInternal(t *testing.T) map[string]*pkg {
	t.Helper()
	root := filepath.Join(moduleDir(t), "internal")
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("reading %s: %v", root, err)
	}
	pkgs := make(map[string]*pkg)
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "arch_test" {
			continue
		}
		if p := parseDir(t, filepath.Join(root, e.Name())); len(p.Files) > 0 {
			pkgs[p.Name] = p
		}
	}
	return pkgs
}

// parseDir parses the non-test Go files in dir.
func parseDir(t *testing.T, dir string) *pkg {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		t.Fatal(err)
	}
	p := &pkg{Name: filepath.Base(dir), Dir: dir}
	seen := make(map[string]bool)
	fset := token.NewFileSet()
	for _, path := range paths {
		if strings.HasSuffix(path, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if err != nil {
			t.Fatalf("parsing %s: %v", path, err)
		}
		p.Files = append(p.Files, f)
		for _, imp := range f.Imports {
			ip, _ := strconv.Unquote(imp.Path.Value)
			if rel, ok := strings.CutPrefix(ip, modulePath+"/internal/"); ok {
				rel, _, _ = strings.Cut(rel, "/")
				seen[rel] = true
			}
		}
	}
	p.Imports = slices.Sorted(maps.Keys(seen))
	return p
}

func TestLoadInternal(t *testing.T) {
	t.Parallel()
	pkgs := loadInternal(t)

	if _, ok := pkgs["arch_test"]; ok {
		t.Error("loadInternal should skip arch_test")
	}
	sched, ok := pkgs["scheduler"]
	if !ok {
		t.Fatalf("scheduler not loaded; got %v", slices.Sorted(maps.Keys(pkgs)))
	}
	for _, want := range []string{"dag", "registry", "task", "telemetry"} {
		if !sched.imports(want) {
			t.Errorf("scheduler imports = %v, want %q among them", sched.Imports, want)
		}
	}
	for _, f := range sched.Files {
		if f.Name.Name != "scheduler" {
			t.Errorf("parsed a file of package %q under scheduler/", f.Name.Name)
		}
	}
}
