package walker

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
	gitignore "github.com/sabhiram/go-gitignore"
)

// filter holds the exclusion rules for one walk.
type filter struct {
	globs  []string
	ignore *gitignore.GitIgnore
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

// loadRules builds the filter for root. An unreadable ignore file is returned
// as an error alongside a filter that still applies the glob patterns.
func loadRules(root string, opts Options) (*filter, *types.Error) {
	f := &filter{globs: opts.Exclude}
	if opts.IgnoreFile == "" {
		return f, nil
	}

	ignorePath := filepath.Join(root, opts.IgnoreFile)
	file, err := os.Open(ignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, types.ClassifyIO("ignore", ignorePath, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return f, types.ClassifyIO("ignore", ignorePath, err)
	}

	if len(lines) > 0 {
		f.ignore = gitignore.CompileIgnoreLines(lines...)
	}
	return f, nil
}

// matchFile reports whether the file at rel (root-relative, slash separated)
// is excluded.
func (f *filter) matchFile(rel string) bool {
	if f.matchGlob(rel) {
		return true
	}
	return f.ignore != nil && f.ignore.MatchesPath(rel)
}

// matchDir reports whether the directory at rel is excluded, in which case
// nothing below it is visited.
func (f *filter) matchDir(rel string) bool {
	if f.matchGlob(rel) {
		return true
	}
	return f.ignore != nil && (f.ignore.MatchesPath(rel) || f.ignore.MatchesPath(rel+"/"))
}

func (f *filter) matchGlob(rel string) bool {
	base := path.Base(rel)
	for _, pattern := range f.globs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
