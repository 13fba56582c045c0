// Package configstore is a flat key-path document persisted as YAML.
// Paths are dot separated ("playerIslands.<id>.x"); intermediate sections are
// created on Set.
package configstore

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Store struct {
	path string
	root map[string]any
}

// Open reads path if it exists. A missing file yields an empty store that
// will be created on Save.
func Open(path string) (*Store, error) {
	s := &Store{path: path, root: map[string]any{}}
	if err := s.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

// NewMemory returns a store that is never written to disk.
func NewMemory() *Store { return &Store{root: map[string]any{}} }

func (s *Store) Path() string { return s.path }

func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(s.path), err)
	}
	s.root = normalize(doc)
	return nil
}

// Save writes the document through a temp file and rename.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	b, err := yaml.Marshal(s.root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Get(path string) (any, bool) {
	parts := split(path)
	if len(parts) == 0 {
		return nil, false
	}
	var cur any = s.root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (s *Store) Contains(path string) bool {
	_, ok := s.Get(path)
	return ok
}

func (s *Store) GetString(path string) (string, bool) {
	v, ok := s.Get(path)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case nil, map[string]any:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}

func (s *Store) GetFloat(path string) (float64, bool) {
	v, ok := s.Get(path)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// GetInt floors fractional values, matching how block coordinates are read
// from positions stored as doubles.
func (s *Store) GetInt(path string) (int, bool) {
	f, ok := s.GetFloat(path)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Floor(f)), true
}

// Set stores v at path. A nil v deletes the path.
func (s *Store) Set(path string, v any) {
	parts := split(path)
	if len(parts) == 0 {
		return
	}
	if v == nil {
		s.Delete(path)
		return
	}
	m := s.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func (s *Store) Delete(path string) {
	parts := split(path)
	if len(parts) == 0 {
		return
	}
	m := s.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
}

// Keys returns the sorted child keys of the section at path, or of the root
// when path is empty.
func (s *Store) Keys(path string) []string {
	var sec map[string]any
	if strings.TrimSpace(path) == "" {
		sec = s.root
	} else {
		v, ok := s.Get(path)
		if !ok {
			return nil
		}
		sec, ok = v.(map[string]any)
		if !ok {
			return nil
		}
	}
	keys := make([]string, 0, len(sec))
	for k := range sec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func split(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// normalize rewrites nested maps with non-string keys so every section is a
// map[string]any.
func normalize(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = normalizeValue(val)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalize(t)
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeValue(val)
		}
		return m
	default:
		return v
	}
}
