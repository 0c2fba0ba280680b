// Package catalog discovers reviewable files under a root directory and
// records per-file metadata used for batching and budget decisions.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/localreview/internal/tokens"
	"github.com/seanblong/localreview/pkg/models"
)

// DiscoveryError indicates the root path could not be walked. It is fatal:
// no review work starts after it.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// supportedExtensions maps file extensions to the language tag carried on
// each record and echoed into review prompts.
var supportedExtensions = map[string]string{
	".py":     "Python",
	".c":      "C",
	".cpp":    "C++",
	".cc":     "C++",
	".cxx":    "C++",
	".h":      "C/C++ Header",
	".hpp":    "C++ Header",
	".go":     "Go",
	".js":     "JavaScript",
	".ts":     "TypeScript",
	".java":   "Java",
	".rb":     "Ruby",
	".rs":     "Rust",
	".sh":     "Shell",
	".xml":    "XML",
	".launch": "ROS Launch",
	".yaml":   "YAML",
	".yml":    "YAML",
}

// skipDirs are tooling and output directories never worth reviewing.
var skipDirs = map[string]bool{
	".git":          true,
	".svn":          true,
	".idea":         true,
	".cache":        true,
	".venv":         true,
	"venv":          true,
	"__pycache__":   true,
	".pytest_cache": true,
	"node_modules":  true,
	"vendor":        true,
	"build":         true,
	"install":       true,
	"log":           true,
	"dist":          true,
	"target":        true,
	"coverage":      true,
}

// Catalog discovers files under Root, applying exclusion patterns.
type Catalog struct {
	Root       string
	Exclude    []string
	Walker     FileSystemWalker
	FileReader FileReader
}

// New creates a Catalog rooted at root with the given glob exclusions.
func New(root string, exclude []string) *Catalog {
	return &Catalog{
		Root:       root,
		Exclude:    exclude,
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
	}
}

// Discover walks the tree and returns one record per eligible file, sorted
// lexicographically by relative path so repeated runs on an unchanged tree
// produce identical sequences.
func (c *Catalog) Discover() ([]models.FileRecord, error) {
	info, err := os.Stat(c.Root)
	if err != nil {
		return nil, &DiscoveryError{Root: c.Root, Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Root: c.Root, Err: fmt.Errorf("not a directory")}
	}

	var records []models.FileRecord
	walkErr := c.Walker.Walk(c.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				if skipDirs[filepath.Base(path)] {
					return filepath.SkipDir
				}
				return nil
			}

			rel := c.rel(path)
			if shouldSkip(rel) || c.excluded(rel) {
				return nil
			}

			lang, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
			if !ok {
				return nil
			}

			b, err := c.FileReader.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file")
				return nil
			}

			records = append(records, models.FileRecord{
				Path:            rel,
				ByteSize:        len(b),
				EstimatedTokens: tokens.Estimate(string(b)),
				Language:        lang,
			})
			return nil
		},
	})
	if walkErr != nil {
		return nil, &DiscoveryError{Root: c.Root, Err: walkErr}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	log.Info().Int("files", len(records)).Str("root", c.Root).Msg("discovery complete")
	return records, nil
}

// Read returns the content of a discovered file by its relative path.
func (c *Catalog) Read(relPath string) (string, error) {
	b, err := c.FileReader.ReadFile(filepath.Join(c.Root, relPath))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// excluded matches glob patterns case-sensitively against both the relative
// path and the basename, mirroring the usual .gitignore-style expectation.
func (c *Catalog) excluded(rel string) bool {
	base := filepath.Base(rel)
	for _, pattern := range c.Exclude {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// shouldSkip returns true if any component of the relative path is a
// well-known tooling directory.
func shouldSkip(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skipDirs[part] {
			return true
		}
	}
	return false
}

func (c *Catalog) rel(p string) string {
	r, err := filepath.Rel(c.Root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(r)
}
