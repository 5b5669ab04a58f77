package configuration

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Decode parses TOML settings. Keys may be written dotted
// ("workbench.startupEditor" quoted) or as nested tables; both flatten to
// the registered setting keys. Tables beneath a registered object-valued
// setting stay intact.
func (s *Service) Decode(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]any)
	s.flatten("", doc, out)
	return out, nil
}

func (s *Service) flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if s.registry.Has(key) {
			out[key] = v
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			s.flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}

// LoadFile reads a TOML settings file and applies it. A missing file
// clears the user layer.
func (s *Service) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s.Apply(nil, path)
	}
	if err != nil {
		return fmt.Errorf("configuration: read %s: %w", path, err)
	}
	values, err := s.Decode(data)
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return s.Apply(values, path)
}

// Encode renders the user layer as TOML with nested tables.
func (s *Service) Encode() ([]byte, error) {
	user := s.UserValues()
	keys := make([]string, 0, len(user))
	for k := range user {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := make(map[string]any)
	for _, k := range keys {
		parts := strings.Split(k, ".")
		m := doc
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = user[k]
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("configuration: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveFile writes the user layer to path.
func (s *Service) SaveFile(path string) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("configuration: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("configuration: write %s: %w", path, err)
	}
	return nil
}
