package config

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/graphflow/internal/ctxlog"
	"github.com/vk/graphflow/internal/fsutil"
)

// fileRoot captures the top-level block structure of a run file. Bodies
// are kept undecoded so solver blocks can be evaluated against the
// variables gathered from every file first.
type fileRoot struct {
	Variables []*variablesBlock `hcl:"variables,block"`
	Solvers   []*solverBlock    `hcl:"solver,block"`
}

type variablesBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type solverBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// Load parses path, a single .hcl file or a directory of them, into a
// Model. Variables blocks are evaluated first across all files, then
// solver blocks are decoded with ${var.*} in scope.
func Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findHCLFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("config: no .hcl files under %s", path)
	}
	logger.Debug("run file discovery complete", "path", path, "files", len(files))

	parser := hclparse.NewParser()
	var roots []*fileRoot
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("config: parse %s: %w", file, diags)
		}
		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("config: decode %s: %w", file, diags)
		}
		roots = append(roots, &root)
	}

	evalCtx, err := buildEvalContext(roots)
	if err != nil {
		return nil, err
	}

	model := &Model{Solvers: make(map[string]*Solver)}
	for _, root := range roots {
		for _, block := range root.Solvers {
			if _, dup := model.Solvers[block.Name]; dup {
				return nil, fmt.Errorf("config: duplicate solver block %q", block.Name)
			}
			solver := &Solver{Name: block.Name}
			if diags := gohcl.DecodeBody(block.Body, evalCtx, solver); diags.HasErrors() {
				return nil, fmt.Errorf("config: solver %q: %w", block.Name, diags)
			}
			if err := solver.applyDefaults(); err != nil {
				return nil, err
			}
			model.Solvers[block.Name] = solver
		}
	}
	logger.Debug("run file loaded", "solvers", len(model.Solvers))
	return model, nil
}

// buildEvalContext folds every variables block into a single ${var.*}
// scope. Variable expressions must be constant.
func buildEvalContext(roots []*fileRoot) (*hcl.EvalContext, error) {
	vars := make(map[string]cty.Value)
	for _, root := range roots {
		for _, vb := range root.Variables {
			attrs, diags := vb.Body.JustAttributes()
			if diags.HasErrors() {
				return nil, fmt.Errorf("config: variables block: %w", diags)
			}
			for name, attr := range attrs {
				val, diags := attr.Expr.Value(nil)
				if diags.HasErrors() {
					return nil, fmt.Errorf("config: variable %q: %w", name, diags)
				}
				vars[name] = val
			}
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var": cty.ObjectVal(vars),
		},
	}, nil
}

// findHCLFiles returns path itself if it is an .hcl file, or every .hcl
// file under it if it is a directory.
func findHCLFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("config: walk %s: %w", path, err)
	}
	return files, nil
}
