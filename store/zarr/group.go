// Package zarr implements the subset of the Zarr v2 directory store used
// for spectrogram cubes and DAS source blocks: groups with attributes, and
// arrays chunked along their leading axis with optional zstd compression.
// Stores written here open with zarr-python and xarray.
package zarr

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotStore is returned when overwriting a path that exists but is not a
// Zarr store
var ErrNotStore = errors.New("path exists and is not a zarr store")

// Group is a Zarr v2 group
type Group struct {
	path string
}

// CreateStore creates a new root group at path. An existing Zarr store at
// path is removed first; any other existing file or directory is left
// alone and ErrNotStore is returned.
func CreateStore(path string, attrs map[string]any) (*Group, error) {
	if _, err := os.Stat(path); err == nil {
		if !isStore(path) {
			return nil, fmt.Errorf("zarr: %s: %w", path, ErrNotStore)
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("zarr: remove existing store: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("zarr: stat %s: %w", path, err)
	}
	return createGroup(path, attrs)
}

// OpenGroup opens an existing group
func OpenGroup(path string) (*Group, error) {
	data, err := os.ReadFile(filepath.Join(path, groupMetaFile))
	if err != nil {
		return nil, fmt.Errorf("zarr: open group: %w", err)
	}
	var meta struct {
		ZarrFormat int `json:"zarr_format"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("zarr: parse %s: %w", groupMetaFile, err)
	}
	if meta.ZarrFormat != 2 {
		return nil, fmt.Errorf("zarr: unsupported format version %d", meta.ZarrFormat)
	}
	return &Group{path: path}, nil
}

func isStore(path string) bool {
	for _, name := range []string{groupMetaFile, arrayMetaFile} {
		if _, err := os.Stat(filepath.Join(path, name)); err == nil {
			return true
		}
	}
	return false
}

func createGroup(path string, attrs map[string]any) (*Group, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("zarr: create group dir: %w", err)
	}
	if err := writeJSON(filepath.Join(path, groupMetaFile), map[string]int{"zarr_format": 2}); err != nil {
		return nil, err
	}
	if attrs != nil {
		if err := writeJSON(filepath.Join(path, attrsFile), attrs); err != nil {
			return nil, err
		}
	}
	return &Group{path: path}, nil
}

// Path returns the group directory
func (g *Group) Path() string {
	return g.path
}

// CreateGroup creates a child group
func (g *Group) CreateGroup(name string, attrs map[string]any) (*Group, error) {
	return createGroup(filepath.Join(g.path, name), attrs)
}

// CreateArray creates a child array
func (g *Group) CreateArray(name string, opts ArrayOptions) (*Array, error) {
	return CreateArray(filepath.Join(g.path, name), opts)
}

// OpenArray opens a child array
func (g *Group) OpenArray(name string) (*Array, error) {
	return OpenArray(filepath.Join(g.path, name))
}

// SetAttributes replaces the group's .zattrs
func (g *Group) SetAttributes(attrs map[string]any) error {
	return writeJSON(filepath.Join(g.path, attrsFile), attrs)
}

// AttributesJSON returns the raw .zattrs document, "{}" if there is none
func (g *Group) AttributesJSON() ([]byte, error) {
	return readAttrs(g.path)
}
