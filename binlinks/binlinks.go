// Package binlinks finds and removes the per-workspace executables that
// workspace creation drops into the bin directory, named <tool>-<identifier>.
package binlinks

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"github.com/zhubert/hatchery/logger"
)

// Pattern returns the glob matching every executable generated for suffix.
func Pattern(suffix string) string {
	return "*-" + glob.QuoteMeta(suffix)
}

// Find lists the entries of binDir whose names end in -suffix. A missing
// directory has no links.
func Find(binDir, suffix string) ([]string, error) {
	if binDir == "" || suffix == "" {
		return nil, nil
	}
	g, err := glob.Compile(Pattern(suffix))
	if err != nil {
		return nil, fmt.Errorf("compile pattern for %q: %w", suffix, err)
	}

	entries, err := os.ReadDir(binDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if g.Match(e.Name()) {
			matches = append(matches, filepath.Join(binDir, e.Name()))
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Remove deletes each path. Paths already gone count as removed.
// Every path is attempted; the first failure is returned.
func Remove(paths []string) (removed []string, err error) {
	log := logger.WithComponent("binlinks")
	for _, p := range paths {
		if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Warn("failed to remove executable", "path", p, "error", rmErr)
			if err == nil {
				err = rmErr
			}
			continue
		}
		removed = append(removed, p)
	}
	return removed, err
}
