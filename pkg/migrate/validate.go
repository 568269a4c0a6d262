package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every .sql file in dir for a well-formed name, a unique
// version and Up/Down sections in that order. All problems are reported together.
func ValidateDir(dir string) error {
	versions, err := scanVersions(dir)
	if err != nil {
		return err
	}

	var errs error
	byVersion := map[string]string{}
	for _, file := range versions {
		if file.err != nil {
			errs = multierr.Append(errs, file.err)
			continue
		}
		if prev, ok := byVersion[file.version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", file.version, prev, file.name))
			continue
		}
		byVersion[file.version] = file.name
		errs = multierr.Append(errs, checkSections(filepath.Join(dir, file.name)))
	}
	return errs
}

type migrationFile struct {
	name    string
	version string
	err     error
}

// scanVersions lists sql files in version order. Files with a bad name carry
// their error and an empty version.
func scanVersions(dir string) ([]migrationFile, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			files = append(files, migrationFile{
				name: e.Name(),
				err:  fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name()),
			})
			continue
		}
		files = append(files, migrationFile{name: e.Name(), version: m[1]})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func checkSections(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", path, err)
	}
	txt := string(b)
	name := filepath.Base(path)
	up := strings.Index(txt, upMarker)
	down := strings.Index(txt, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing %q", name, upMarker)
	case down < 0:
		return fmt.Errorf("migration %q missing %q", name, downMarker)
	case down < up:
		return fmt.Errorf("migration %q has its Down section before Up", name)
	}
	return nil
}

// latestVersion returns the highest well-formed version in dir, or "".
func latestVersion(dir string) (string, error) {
	files, err := scanVersions(dir)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, f := range files {
		if f.version > latest {
			latest = f.version
		}
	}
	return latest, nil
}
