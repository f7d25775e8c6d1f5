package storage

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"inspection-service/internal/config"
)

// WebPrefix is the public path under which artifacts are served.
const WebPrefix = "static"

var ErrInvalidName = errors.New("invalid artifact name")

// ArtifactStore keeps annotated images, captures and reports in a flat
// directory that is also served over HTTP.
type ArtifactStore struct {
	fs afero.Fs
}

func NewArtifactStore(cfg config.StorageConfig) (*ArtifactStore, error) {
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return NewArtifactStoreFs(afero.NewBasePathFs(afero.NewOsFs(), cfg.ArtifactDir)), nil
}

// NewArtifactStoreFs wraps an existing filesystem rooted at the artifact directory.
func NewArtifactStoreFs(fs afero.Fs) *ArtifactStore {
	return &ArtifactStore{fs: fs}
}

// Save writes data under name, replacing any previous file, and returns its web path.
func (s *ArtifactStore) Save(name string, data []byte) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, "/"+name, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	return WebPath(name), nil
}

// Write streams an artifact produced by fn under name.
func (s *ArtifactStore) Write(name string, fn func(w io.Writer) error) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	f, err := s.fs.Create("/" + name)
	if err != nil {
		return "", fmt.Errorf("create artifact %s: %w", name, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact %s: %w", name, err)
	}
	return WebPath(name), nil
}

// Read accepts either a bare name or a web path.
func (s *ArtifactStore) Read(p string) ([]byte, error) {
	name, err := cleanName(strings.TrimPrefix(p, WebPrefix+"/"))
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, "/"+name)
}

// Remove accepts either a bare name or a web path. Missing files are an error.
func (s *ArtifactStore) Remove(p string) error {
	name, err := cleanName(strings.TrimPrefix(p, WebPrefix+"/"))
	if err != nil {
		return err
	}
	return s.fs.Remove("/" + name)
}

func (s *ArtifactStore) Exists(name string) bool {
	name, err := cleanName(name)
	if err != nil {
		return false
	}
	ok, err := afero.Exists(s.fs, "/"+name)
	return err == nil && ok
}

func (s *ArtifactStore) Stat(name string) (os.FileInfo, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	return s.fs.Stat("/" + name)
}

// HTTPFileSystem serves stored artifacts. Directory listings are refused.
func (s *ArtifactStore) HTTPFileSystem() http.FileSystem {
	return filesOnly{fs: afero.NewHttpFs(s.fs)}
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

func WebPath(name string) string {
	return WebPrefix + "/" + name
}

// cleanName accepts flat file names only. Callers address the filesystem
// with a leading slash so base-path and in-memory filesystems agree.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != path.Base(name) || name == "." || name == ".." || strings.ContainsRune(name, '\\') {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}
