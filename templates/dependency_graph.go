package templates

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template/parse"

	"github.com/duffpl/go-dump2csv/config"
	"golang.org/x/exp/slices"
)

const GlobalVariablesPrefix = "GlobalVariables"

// CompileTemplates compiles named templates under "."+namePrefix+"." and links each one to
// the templates of the same prefix it references.
func (c *Compiler) CompileTemplates(templates map[string]config.Template, namePrefix string) (map[string]*Template, error) {
	compiledTemplates := make(map[string]*Template)
	for name, _template := range templates {
		prefixedName := "." + namePrefix + "." + name
		compiledTemplate, err := c.GetCompiledTemplate(string(_template), prefixedName)
		if err != nil {
			return nil, fmt.Errorf("cannot compile template %s: %w", prefixedName, err)
		}
		compiledTemplates[prefixedName] = &Template{
			CompiledTemplate: compiledTemplate,
			Dependencies:     nil,
			Name:             prefixedName,
		}
	}
	// build dependency graph
	for name, compiledTemplate := range compiledTemplates {
		dependencies := ExtractVariables(compiledTemplate.CompiledTemplate.Tree.Root, namePrefix)
		for _, dependency := range dependencies {
			dependencyTemplate, ok := compiledTemplates[dependency]
			if !ok {
				return nil, fmt.Errorf("template %s depends on %s, but %s is not defined", name, dependency, dependency)
			}
			compiledTemplate.Dependencies = append(compiledTemplate.Dependencies, dependencyTemplate)
		}
	}
	return compiledTemplates, nil
}

// ExtractVariables lists the ".prefix.name" fields referenced by the actions of a template,
// including actions nested in if/range/with blocks.
func ExtractVariables(rootNode *parse.ListNode, prefix string) (result []string) {
	variableNameRegexp := regexp.MustCompile(`^\.` + prefix + `\.\w+`)
	var visit func(node parse.Node)
	visitPipe := func(pipe *parse.PipeNode) {
		if pipe == nil {
			return
		}
		for _, pipeCmd := range pipe.Cmds {
			for _, arg := range pipeCmd.Args {
				switch arg.Type() {
				case parse.NodeField:
					variableName := variableNameRegexp.FindString(arg.String())
					if variableName == "" {
						continue
					}
					// check if the variable is already in the list
					if !slices.Contains(result, variableName) {
						result = append(result, variableName)
					}
				case parse.NodePipe:
					visit(arg)
				}
			}
		}
	}
	visit = func(node parse.Node) {
		switch n := node.(type) {
		case *parse.ListNode:
			if n == nil {
				return
			}
			for _, child := range n.Nodes {
				visit(child)
			}
		case *parse.ActionNode:
			visitPipe(n.Pipe)
		case *parse.PipeNode:
			visitPipe(n)
		case *parse.IfNode:
			visitPipe(n.Pipe)
			visit(n.List)
			visit(n.ElseList)
		case *parse.RangeNode:
			visitPipe(n.Pipe)
			visit(n.List)
			visit(n.ElseList)
		case *parse.WithNode:
			visitPipe(n.Pipe)
			visit(n.List)
			visit(n.ElseList)
		}
	}
	visit(rootNode)
	return
}

// GetOrderedTemplates returns templates so that every template comes after its dependencies.
func GetOrderedTemplates(templates map[string]*Template) ([]*Template, error) {
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)
	stack := []*Template{}

	var dfs func(node string) error
	dfs = func(name string) error {
		if _, ok := templates[name]; !ok {
			return fmt.Errorf("template %s not found", name)
		}
		if !visited[name] {
			visited[name] = true
			recursionStack[name] = true
			for _, dep := range templates[name].Dependencies {
				if recursionStack[dep.Name] {
					return fmt.Errorf("cycle detected: %s is part of a cycle", dep.Name)
				}
				if !visited[dep.Name] {
					if err := dfs(dep.Name); err != nil {
						return err
					}
				}
			}
			stack = append(stack, templates[name])
		}
		delete(recursionStack, name)
		return nil
	}

	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if !visited[name] {
			if err := dfs(name); err != nil {
				return nil, err
			}
		}
	}

	return stack, nil
}

// RenderGlobalVariables renders global variable templates in dependency order. Each template
// sees the variables rendered before it as .GlobalVariables.
func (c *Compiler) RenderGlobalVariables(variables map[string]config.Template) (map[string]string, error) {
	compiled, err := c.CompileTemplates(variables, GlobalVariablesPrefix)
	if err != nil {
		return nil, fmt.Errorf("cannot compile global variables templates: %w", err)
	}
	ordered, err := GetOrderedTemplates(compiled)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve global variables order: %w", err)
	}
	result := make(map[string]string, len(ordered))
	for _, tmpl := range ordered {
		output := new(bytes.Buffer)
		err := tmpl.CompiledTemplate.Execute(output, struct {
			GlobalVariables map[string]string
		}{
			GlobalVariables: result,
		})
		if err != nil {
			return nil, fmt.Errorf("cannot render global variables template '%s': %w", tmpl.Name, err)
		}
		shortName, _ := strings.CutPrefix(tmpl.Name, "."+GlobalVariablesPrefix+".")
		result[shortName] = output.String()
	}
	return result, nil
}
