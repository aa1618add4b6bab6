package common

import (
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
)

// GetCommitHash resolves the short git commit of the working tree or the
// binary's directory, for version stamping. Returns "unknown" outside a repo.
func GetCommitHash() string {
	candidates := make([]string, 0, 2)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, cwd)
	}
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Dir(exePath))
	}
	for _, path := range candidates {
		hash := commitHashFromPath(path)
		if hash == "" {
			continue
		}
		if len(hash) >= 8 {
			return hash[:8]
		}
		return hash
	}
	return "unknown"
}

func commitHashFromPath(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}
