// Package artifacts manages the directory where scan workers deposit their
// raw per-host JSON results. Each host owns exactly one artifact path, so
// concurrent workers never contend on the same file.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/avolpe/scanflow/internal/errors"
)

const (
	dirPerm = 0750

	// Suffix matches the naming convention the scan workers use for
	// their output files.
	artifactSuffix = "_results.json"

	// keepFile is never removed by Clear so the artifact directory can
	// carry operator documentation.
	keepFile = "README.md"
)

// Artifact is one raw result blob keyed by host address.
type Artifact struct {
	Host string
	Path string
}

// Read returns the raw artifact bytes.
func (a Artifact) Read() ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, errors.WrapWithTarget(errors.CodeArtifactMissing, "failed to read artifact", a.Host, err)
	}
	return data, nil
}

// Store is a directory-backed artifact store.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New(errors.CodeConfiguration, "artifact directory is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrap(errors.CodeConfiguration, "failed to create artifact directory", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the artifact location a worker must write for the given
// host. The path exists whether or not the artifact does.
func (s *Store) Path(host string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%s", host, artifactSuffix))
}

// Locate returns the artifact for a host, or an ARTIFACT_MISSING error if
// the worker never produced one.
func (s *Store) Locate(host string) (Artifact, error) {
	path := s.Path(host)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Artifact{}, errors.ErrArtifactMissing(host)
	}
	return Artifact{Host: host, Path: path}, nil
}

// List returns all artifacts currently in the store, keyed by the host
// encoded in each file name.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfiguration, "failed to read artifact directory", err)
	}

	var out []Artifact
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, artifactSuffix) {
			continue
		}
		host := strings.TrimSuffix(name, artifactSuffix)
		out = append(out, Artifact{Host: host, Path: filepath.Join(s.dir, name)})
	}
	return out, nil
}

// Clear removes every file in the store so a new run starts from a clean,
// deterministic state. It is idempotent and safe on an empty or missing
// directory. README.md survives, matching the run-reset convention.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(s.dir, dirPerm)
		}
		return errors.Wrap(errors.CodeConfiguration, "failed to read artifact directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == keepFile {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return errors.Wrap(errors.CodeConfiguration, "failed to clear artifact directory", err)
		}
	}
	return nil
}
