package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxPathLength bounds accepted file paths
const maxPathLength = 4096

// Paths resolves user-supplied file paths, optionally confining them to a
// set of base directories.
type Paths struct {
	// AllowedBaseDirs restricts paths to these directories; empty allows any
	AllowedBaseDirs []string
}

// DataDir is the default directory of the database, log and bundles.
func DataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".lectern"
	}
	return filepath.Join(homeDir, ".lectern")
}

// ConfigDir is the default directory of the configuration file.
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "lectern")
	}
	return filepath.Join(homeDir, ".config", "lectern")
}

// NewSecurePaths confines paths to the lectern data and config directories
// and the temp dir.
func NewSecurePaths() *Paths {
	return &Paths{AllowedBaseDirs: []string{DataDir(), ConfigDir(), os.TempDir()}}
}

// NewPermissivePaths accepts any location.
func NewPermissivePaths() *Paths {
	return &Paths{}
}

// Resolve expands a leading ~/, makes path absolute and clean, and checks it
// against the allowed base directories.
func (p *Paths) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if len(path) > maxPathLength {
		return "", fmt.Errorf("path too long (max %d characters)", maxPathLength)
	}
	for _, r := range path {
		if r == 0 || (r < 32 && r != '\t') {
			return "", fmt.Errorf("path contains control characters")
		}
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return "", fmt.Errorf("directory traversal not allowed")
		}
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	} else if strings.HasPrefix(path, "~") {
		return "", fmt.Errorf("invalid tilde usage")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot make path absolute: %w", err)
	}
	if err := p.checkBase(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func (p *Paths) checkBase(abs string) error {
	if len(p.AllowedBaseDirs) == 0 {
		return nil
	}
	for _, base := range p.AllowedBaseDirs {
		absBase, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absBase, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("path not within allowed directories: %v", p.AllowedBaseDirs)
}

// File resolves the path of a file, rejecting existing directories.
func (p *Paths) File(path string) (string, error) {
	resolved, err := p.Resolve(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", resolved)
	}
	return resolved, nil
}

// Dir resolves a directory path, creating it when create is set.
func (p *Paths) Dir(path string, create bool) (string, error) {
	resolved, err := p.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	switch {
	case err == nil && !info.IsDir():
		return "", fmt.Errorf("path exists but is not a directory: %s", resolved)
	case os.IsNotExist(err) && create:
		if err := os.MkdirAll(resolved, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	case err != nil && !os.IsNotExist(err):
		return "", fmt.Errorf("checking directory: %w", err)
	}
	return resolved, nil
}

// DBPath resolves the database path, defaulting to ~/.lectern/lectern.db,
// and creates its parent directory.
func (p *Paths) DBPath(userPath string) (string, error) {
	if userPath == "" {
		userPath = filepath.Join(DataDir(), "lectern.db")
	}
	resolved, err := p.File(userPath)
	if err != nil {
		return "", err
	}
	if _, err := p.Dir(filepath.Dir(resolved), true); err != nil {
		return "", err
	}
	return resolved, nil
}

// ConfigPath resolves the config file path, defaulting to
// ~/.config/lectern/config.toml.
func (p *Paths) ConfigPath(userPath string) (string, error) {
	if userPath == "" {
		userPath = filepath.Join(ConfigDir(), "config.toml")
	}
	return p.File(userPath)
}

// BundleDir resolves the bundle directory, defaulting to
// ~/.lectern/bundles. It is not created.
func (p *Paths) BundleDir(userPath string) (string, error) {
	if userPath == "" {
		userPath = filepath.Join(DataDir(), "bundles")
	}
	return p.Dir(userPath, false)
}
