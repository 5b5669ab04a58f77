package exthost

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Manifest file names, in lookup order.
var manifestFiles = []string{"extension.json", "extension.yaml", "extension.yml"}

// Manifest describes an extension.
type Manifest struct {
	Publisher   string `json:"publisher" yaml:"publisher"`
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	Description string `json:"description" yaml:"description"`

	// Main is the Lua entry point relative to the extension directory.
	Main string `json:"main" yaml:"main"`

	ActivationEvents []string      `json:"activationEvents" yaml:"activationEvents"`
	Contributes      Contributions `json:"contributes" yaml:"contributes"`

	dir string
}

// Contributions are the static declarations of an extension.
type Contributions struct {
	Commands           []CommandContribution `json:"commands" yaml:"commands"`
	LanguageModelTools []ToolContribution    `json:"languageModelTools" yaml:"languageModelTools"`
}

type CommandContribution struct {
	Command  string `json:"command" yaml:"command"`
	Title    string `json:"title" yaml:"title"`
	Category string `json:"category" yaml:"category"`
}

type ToolContribution struct {
	Name             string         `json:"name" yaml:"name"`
	DisplayName      string         `json:"displayName" yaml:"displayName"`
	ModelDescription string         `json:"modelDescription" yaml:"modelDescription"`
	InputSchema      map[string]any `json:"inputSchema" yaml:"inputSchema"`
	Tags             []string       `json:"tags" yaml:"tags"`
}

var (
	namePattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)
)

// LoadManifest reads the manifest in dir.
func LoadManifest(dir string) (*Manifest, error) {
	for _, name := range manifestFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("exthost: read %s: %w", path, err)
		}
		m, err := ParseManifest(data, filepath.Ext(name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		m.dir = dir
		return m, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrNoManifest, dir)
}

// ParseManifest decodes and validates a manifest. ext selects the format:
// ".json", or ".yaml"/".yml".
func ParseManifest(data []byte, ext string) (*Manifest, error) {
	var m Manifest
	var err error
	switch ext {
	case ".json":
		err = json.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidManifest, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = "extension.lua"
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks required fields and formats.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: name %q", ErrInvalidManifest, m.Name)
	}
	if m.Publisher != "" && !namePattern.MatchString(m.Publisher) {
		return fmt.Errorf("%w: publisher %q", ErrInvalidManifest, m.Publisher)
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: version %q", ErrInvalidManifest, m.Version)
	}
	if filepath.Ext(m.Main) != ".lua" || filepath.IsAbs(m.Main) {
		return fmt.Errorf("%w: main %q must be a relative .lua path", ErrInvalidManifest, m.Main)
	}
	for i, c := range m.Contributes.Commands {
		if c.Command == "" {
			return fmt.Errorf("%w: command %d has no id", ErrInvalidManifest, i)
		}
	}
	for i, t := range m.Contributes.LanguageModelTools {
		if t.Name == "" {
			return fmt.Errorf("%w: tool %d has no name", ErrInvalidManifest, i)
		}
	}
	return nil
}

// ID is publisher.name, or just name without a publisher.
func (m *Manifest) ID() string {
	if m.Publisher == "" {
		return m.Name
	}
	return m.Publisher + "." + m.Name
}

// Dir is the extension directory.
func (m *Manifest) Dir() string { return m.dir }

// MainPath is the absolute path of the entry point.
func (m *Manifest) MainPath() string { return filepath.Join(m.dir, m.Main) }

// Tool returns the contribution for a tool name.
func (m *Manifest) Tool(name string) (ToolContribution, bool) {
	for _, t := range m.Contributes.LanguageModelTools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolContribution{}, false
}
