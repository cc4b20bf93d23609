// module.go locates the go.mod of the sources being checked.
package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// moduleInfo describes the module enclosing a directory.
type moduleInfo struct {
	Root string // directory holding go.mod
	Path string // module path
}

// findGoMod walks up from startDir looking for go.mod.
//
// Returns the path to go.mod, or "" if none is found before the
// filesystem root.
func findGoMod(startDir string) string {
	dir := startDir
	for {
		modPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(modPath); err == nil {
			return modPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadModule reads the module enclosing startDir. A nil result with a nil
// error means startDir is not inside a module.
func loadModule(startDir string) (*moduleInfo, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	goMod := findGoMod(abs)
	if goMod == "" {
		return nil, nil
	}

	data, err := os.ReadFile(goMod)
	if err != nil {
		return nil, err
	}
	mf, err := modfile.ParseLax(goMod, data, nil)
	if err != nil {
		return nil, err
	}
	if mf.Module == nil {
		return nil, fmt.Errorf("%s: no module directive", goMod)
	}
	return &moduleInfo{
		Root: filepath.Dir(goMod),
		Path: mf.Module.Mod.Path,
	}, nil
}

// packagePath returns the import path of dir, or dir itself when it lies
// outside the module.
func (m *moduleInfo) packagePath(dir string) string {
	if m == nil {
		return dir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	rel, err := filepath.Rel(m.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return dir
	}
	if rel == "." {
		return m.Path
	}
	return path.Join(m.Path, filepath.ToSlash(rel))
}
