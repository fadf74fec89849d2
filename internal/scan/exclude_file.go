package scan

import (
	"bufio"
	"os"
	"strings"
)

// LoadExcludeFile reads path and returns one exclude pattern per non-empty
// line. Lines starting with # are comments; surrounding whitespace is
// trimmed. A missing file is not an error and returns nil, nil, so callers
// can probe for an optional ignore file.
func LoadExcludeFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
