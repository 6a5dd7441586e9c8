package templates

import (
	"crypto/md5"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

type Template struct {
	CompiledTemplate *template.Template
	Dependencies     []*Template
	Name             string
}

func Md5(input string) string {
	hasher := md5.New()
	hasher.Write([]byte(input))
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// Compiler compiles templates against a fixed function map and caches them by content.
type Compiler struct {
	funcs             template.FuncMap
	compiledTemplates sync.Map
}

func NewCompiler(extraFuncs ...template.FuncMap) *Compiler {
	funcs := sprig.TxtFuncMap()
	funcs["md5"] = func(input string) string {
		return Md5(input)
	}
	funcs["argon2Hash"] = func(input string) string {
		result, err := argon2Hash(input)
		if err != nil {
			panic(fmt.Errorf("cannot hash password: %w", err))
		}
		return result
	}
	funcs["bcryptHash"] = func(input string) string {
		result, err := bcryptHash(input)
		if err != nil {
			panic(fmt.Errorf("cannot hash password: %w", err))
		}
		return result
	}
	for _, extra := range extraFuncs {
		for name, fn := range extra {
			funcs[name] = fn
		}
	}
	return &Compiler{funcs: funcs}
}

func (c *Compiler) GetCompiledTemplate(templateData string, templateName string) (*template.Template, error) {
	templateId := Md5(templateName + "\x00" + templateData)
	compiled, exists := c.compiledTemplates.Load(templateId)
	if !exists {
		compiledTemplate, err := template.New(templateName).
			Funcs(c.funcs).
			Option("missingkey=error").
			Parse(templateData)
		if err != nil {
			return nil, fmt.Errorf("cannot compile template: %w", err)
		}
		c.compiledTemplates.Store(templateId, compiledTemplate)
		return compiledTemplate, nil
	}
	return compiled.(*template.Template), nil
}
