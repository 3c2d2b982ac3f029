package buildorch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
)

// gitignoreMatcher builds a patternmatcher.PatternMatcher from the
// .gitignore files found at the root of a component's source tree.
// Components without a .gitignore hash their entire tree; this
// mirrors the original implementation's behavior of excluding only
// what the component itself declares as ignorable.
func gitignoreMatcher(root string) (*patternmatcher.PatternMatcher, error) {
	path := filepath.Join(root, ".gitignore")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	return patternmatcher.New(patterns)
}
