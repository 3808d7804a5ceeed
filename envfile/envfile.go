// Package envfile reads workspace environment files. Cleanup uses it to learn,
// before a worktree is deleted, whether the workspace owns a database branch.
package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Lookup returns the value of key from the first file in files (relative to
// dir) that defines it. Missing files are skipped.
func Lookup(dir string, files []string, key string) (value, source string, err error) {
	for _, name := range files {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, name)
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", "", fmt.Errorf("read %s: %w", path, err)
		}
		if v, ok := vars[key]; ok {
			return v, path, nil
		}
	}
	return "", "", nil
}

// Write sets key=value in dir/name, keeping the file's other variables.
func Write(dir, name, key, value string) error {
	path := filepath.Join(dir, name)
	vars, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		vars = map[string]string{}
	}
	vars[key] = value
	if err := godotenv.Write(vars, path); err != nil {
		return err
	}
	return os.Chmod(path, 0600)
}
