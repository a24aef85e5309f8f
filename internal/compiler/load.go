package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// Extensions lists the file extensions Load recognizes.
var Extensions = []string{".cue", ".yaml", ".yml"}

// LoadFile parses one query file, choosing the format by extension.
func LoadFile(path string) ([]*QuerySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return CompileCUE(data, path)
	case ".yaml", ".yml":
		return DecodeYAML(data, path)
	default:
		return nil, fmt.Errorf("%s: unsupported query file extension", path)
	}
}

// Load parses a query file, or every query file directly inside a
// directory in lexical order. Query names must be unique across files.
func Load(path string) ([]*QuerySpec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = queryFiles(path)
		if err != nil {
			return nil, err
		}
	}

	var all []*QuerySpec
	seen := make(map[string]string)
	for _, file := range files {
		specs, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		for _, spec := range specs {
			if prev, dup := seen[spec.Name]; dup {
				return nil, fmt.Errorf("%s: query %s already declared in %s", file, spec.Name, prev)
			}
			seen[spec.Name] = file
		}
		all = append(all, specs...)
	}
	return all, nil
}

func queryFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if slices.Contains(Extensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
