// Package system implements file tools confined to a sandbox directory.
// Paths are relative to the sandbox root and cannot escape it.
package system

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"myhelper/internal/utils"
)

type Sandbox struct {
	dir string
}

func NewSandbox(dir string) (*Sandbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create sandbox dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Sandbox{dir: abs}, nil
}

func (s *Sandbox) Dir() string { return s.dir }

// open returns a root handle; every operation goes through it so ".." and
// symlinks cannot leave the sandbox.
func (s *Sandbox) open() (*os.Root, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open sandbox: %w", err)
	}
	return root, nil
}

func (s *Sandbox) ReadFile(path string) (map[string]any, error) {
	root, err := s.open()
	if err != nil {
		return nil, err
	}
	defer root.Close()
	data, err := root.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file: %w", err)
	}
	return map[string]any{"content": string(data), "size": len(data)}, nil
}

// WriteFile replaces the file, or appends a line when appendLine is set.
func (s *Sandbox) WriteFile(path, content string, appendLine bool) (map[string]any, error) {
	root, err := s.open()
	if err != nil {
		return nil, err
	}
	defer root.Close()
	if dir := filepath.Dir(path); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create folder: %w", err)
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendLine {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		content += "\n"
	}
	file, err := root.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open or create file for writing: %w", err)
	}
	defer file.Close()
	n, err := file.WriteString(content)
	if err != nil {
		return nil, fmt.Errorf("could not write to file: %w", err)
	}
	return map[string]any{"path": path, "bytes_written": n}, nil
}

func (s *Sandbox) ListDirectory(path string) (map[string]any, error) {
	root, err := s.open()
	if err != nil {
		return nil, err
	}
	defer root.Close()
	entries, err := fs.ReadDir(root.FS(), filepath.ToSlash(filepath.Clean(path)))
	if err != nil {
		return nil, fmt.Errorf("could not list directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return map[string]any{"entries": names, "count": len(names)}, nil
}

func (s *Sandbox) HandleSystemAction(_ context.Context, operation string, params map[string]any) (map[string]any, error) {
	path := utils.GetOptionalString(params, "path", ".")
	switch operation {
	case "read_file":
		return s.ReadFile(path)
	case "write_file":
		content, err := utils.GetString(params, "content")
		if err != nil {
			return nil, err
		}
		return s.WriteFile(path, content, utils.GetBool(params, "append"))
	case "list_directory":
		return s.ListDirectory(path)
	default:
		return nil, fmt.Errorf("unknown system operation: %s", operation)
	}
}
