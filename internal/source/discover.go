package source

import (
	"context"
	"fmt"
	"os"
)

// DefaultCSVPaths are probed in order when no explicit path is configured.
var DefaultCSVPaths = []string{
	"linkedin_profiles.csv",
	"app/linkedin_profiles.csv",
	"../linkedin_profiles.csv",
	"./linkedin_profiles.csv",
	"/app/linkedin_profiles.csv",
}

// DiscoverCSV returns the first candidate path that exists as a regular file.
func DiscoverCSV(candidates []string) (string, error) {
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
	}
	wd, _ := os.Getwd()
	return "", fmt.Errorf("%w: no profiles CSV found (cwd %s, tried %v)", ErrDataSource, wd, candidates)
}

// lazyCSV resolves its path on every load so a file that appears after
// startup is picked up by the next attempt.
type lazyCSV struct {
	candidates []string
}

// NewCSVLoader returns a Loader for path, or one that discovers the file
// among candidates on each load when path is empty.
func NewCSVLoader(path string, candidates []string) Loader {
	if path != "" {
		return CSVFile{Path: path}
	}
	return lazyCSV{candidates: candidates}
}

func (l lazyCSV) Load(ctx context.Context) (Table, error) {
	p, err := DiscoverCSV(l.candidates)
	if err != nil {
		return Table{}, err
	}
	return CSVFile{Path: p}.Load(ctx)
}
