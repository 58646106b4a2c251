package download

import (
	"os"
	"path/filepath"
	"strings"
)

// PathClean expands environment variables, replaces ~/ by user's home directory and
// call filepath.Clean to secure the path
func PathClean(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	return filepath.Clean(p), nil
}
