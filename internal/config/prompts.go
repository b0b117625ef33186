package config

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.yaml
var embeddedPrompts embed.FS

// Prompt names.
const (
	PromptJudge    = "judge"
	PromptDetector = "detector"
)

// PromptYAML is the on-disk shape of a prompt file.
type PromptYAML struct {
	Name   string `yaml:"name"`
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// PromptTemplate is a parsed prompt: a fixed system text and a user template.
type PromptTemplate struct {
	Name   string
	System string
	user   *template.Template
}

// Render executes the user template with data.
func (p *PromptTemplate) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := p.user.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("op=prompt.Render name=%s: %w", p.Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Prompts holds every prompt the AI adapters use.
type Prompts struct {
	Judge    *PromptTemplate
	Detector *PromptTemplate
}

// LoadPrompts loads the built-in prompts. When dir is non-empty, any
// <name>.yaml found there replaces the built-in file of the same name.
func LoadPrompts(dir string) (*Prompts, error) {
	judge, err := loadPrompt(dir, PromptJudge)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadPrompts: %w", err)
	}
	detector, err := loadPrompt(dir, PromptDetector)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadPrompts: %w", err)
	}
	return &Prompts{Judge: judge, Detector: detector}, nil
}

// MustLoadPrompts returns the built-in prompts and panics if they are broken.
func MustLoadPrompts() *Prompts {
	p, err := LoadPrompts("")
	if err != nil {
		panic(err)
	}
	return p
}

func loadPrompt(dir, name string) (*PromptTemplate, error) {
	content, err := readPromptFile(dir, name)
	if err != nil {
		return nil, err
	}
	var py PromptYAML
	if err := yaml.Unmarshal(content, &py); err != nil {
		return nil, fmt.Errorf("failed to parse YAML for prompt %s: %w", name, err)
	}
	if strings.TrimSpace(py.User) == "" {
		return nil, fmt.Errorf("prompt %s has no user template", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(py.User)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template for prompt %s: %w", name, err)
	}
	return &PromptTemplate{Name: name, System: strings.TrimSpace(py.System), user: tmpl}, nil
}

func readPromptFile(dir, name string) ([]byte, error) {
	if dir != "" {
		path := filepath.Join(dir, name+".yaml")
		// #nosec G304 -- prompt overrides come from operator configuration
		content, err := os.ReadFile(path)
		if err == nil {
			return content, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read prompt file %s: %w", path, err)
		}
	}
	content, err := embeddedPrompts.ReadFile("prompts/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("prompt %s not found: %w", name, err)
	}
	return content, nil
}
