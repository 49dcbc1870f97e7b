package catalog

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/folio/internal/ai"
	"github.com/seanblong/folio/pkg/models"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

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

// ProjectStore is the part of the store the loader writes to.
type ProjectStore interface {
	GetProjectHash(ctx context.Context, id string) (string, bool, error)
	UpsertProject(ctx context.Context, e models.CatalogEntry, searchVec []float32, contentHash string) error
}

// Stats summarizes one load.
type Stats struct {
	Indexed int
	Skipped int
	Failed  int
}

// Loader reads project files from a directory tree into the store.
type Loader struct {
	Store      ProjectStore
	Root       string
	Client     ai.Client
	Walker     FileSystemWalker
	FileReader FileReader
	// Force re-embeds and rewrites entries whose content hash is unchanged.
	Force   bool
	Workers int

	validate *validator.Validate
}

// New creates a Loader reading from root.
func New(s ProjectStore, root string, client ai.Client) *Loader {
	return NewWithDependencies(s, root, client, &DefaultFileSystemWalker{}, &DefaultFileReader{})
}

// NewWithDependencies creates a Loader with custom dependencies for testing
func NewWithDependencies(s ProjectStore, root string, client ai.Client, walker FileSystemWalker, fileReader FileReader) *Loader {
	return &Loader{
		Store:      s,
		Root:       root,
		Client:     client,
		Walker:     walker,
		FileReader: fileReader,
		validate:   validator.New(),
	}
}

// entry is a parsed catalog entry waiting to be stored.
type entry struct {
	path  string
	entry models.CatalogEntry
	hash  string
}

// Run walks Root, parses every YAML file and stores the entries it finds.
// Invalid files and entries are logged and counted as failed; only walk
// and context errors abort the load.
func (l *Loader) Run(ctx context.Context) (Stats, error) {
	workers := l.Workers
	if workers <= 0 {
		workers = min(runtime.NumCPU(), 8)
	}
	log.Info().Int("workers", workers).Str("root", l.Root).Msg("loading catalog")

	var indexed, skipped, failed atomic.Int64
	seen := map[string]string{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	walkErr := l.Walker.Walk(l.Root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if de != nil && de.IsDir() {
				return nil
			}
			if !isCatalogFile(path) {
				return nil
			}

			entries, err := l.parseFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("skipping catalog file")
				failed.Add(1)
				return nil
			}
			for _, e := range entries {
				if prev, dup := seen[e.entry.ID]; dup {
					log.Warn().Str("id", e.entry.ID).Str("path", path).Str("first", prev).Msg("duplicate project id")
					failed.Add(1)
					continue
				}
				seen[e.entry.ID] = path

				g.Go(func() error {
					switch ok, err := l.store(gctx, e); {
					case err != nil:
						log.Error().Err(err).Str("id", e.entry.ID).Str("path", e.path).Msg("upsert failed")
						failed.Add(1)
					case ok:
						indexed.Add(1)
					default:
						skipped.Add(1)
					}
					return nil
				})
			}
			return nil
		},
	})

	groupErr := g.Wait()
	stats := Stats{Indexed: int(indexed.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	log.Info().Int("indexed", stats.Indexed).Int("skipped", stats.Skipped).Int("failed", stats.Failed).Msg("catalog loaded")

	if walkErr != nil {
		return stats, walkErr
	}
	if groupErr != nil {
		return stats, groupErr
	}
	return stats, ctx.Err()
}

// store writes e unless its hash is unchanged. It reports whether the entry
// was written.
func (l *Loader) store(ctx context.Context, e entry) (bool, error) {
	if !l.Force {
		prev, found, err := l.Store.GetProjectHash(ctx, e.entry.ID)
		if err != nil {
			log.Warn().Err(err).Str("id", e.entry.ID).Msg("hash lookup failed, reindexing")
		} else if found && prev == e.hash {
			log.Debug().Str("id", e.entry.ID).Msg("unchanged")
			return false, nil
		}
	}

	var vec []float32
	if l.Client != nil {
		v, err := l.Client.Embed(ctx, embeddingText(e.entry))
		if err != nil {
			log.Warn().Err(err).Str("id", e.entry.ID).Msg("embedding failed, storing without vector")
		} else {
			vec = v
		}
	}

	log.Info().Str("id", e.entry.ID).Str("path", rel(l.Root, e.path)).
		Int("skills", len(e.entry.Skills)).
		Bool("embedded", vec != nil).
		Msg("indexing project")
	if err := l.Store.UpsertProject(ctx, e.entry, vec, e.hash); err != nil {
		return false, err
	}
	return true, nil
}

// parseFile decodes every YAML document in the file as one catalog entry.
func (l *Loader) parseFile(path string) ([]entry, error) {
	b, err := l.FileReader.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var out []entry
	dec := yaml.NewDecoder(bytes.NewReader(b))
	for doc := 1; ; doc++ {
		var e models.CatalogEntry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		normalize(&e)
		if e.ID == "" && e.Title == "" && len(e.Skills) == 0 {
			continue
		}
		if err := l.validate.Struct(e); err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		h, err := hashEntry(e)
		if err != nil {
			return nil, err
		}
		out = append(out, entry{path: path, entry: e, hash: h})
	}
	return out, nil
}

func normalize(e *models.CatalogEntry) {
	e.ID = strings.TrimSpace(e.ID)
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	e.GithubURL = strings.TrimSpace(e.GithubURL)
	e.LiveURL = strings.TrimSpace(e.LiveURL)
	for i := range e.Skills {
		e.Skills[i].Name = strings.TrimSpace(e.Skills[i].Name)
		e.Skills[i].Category = strings.TrimSpace(e.Skills[i].Category)
	}
}

// hashEntry returns the SHA-1 of the entry's normalized JSON form, so
// formatting-only edits of a file do not trigger a reindex.
func hashEntry(e models.CatalogEntry) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	h := sha1.Sum(b)
	return hex.EncodeToString(h[:]), nil
}

// embeddingText is what gets embedded for semantic search.
func embeddingText(e models.CatalogEntry) string {
	var sb strings.Builder
	sb.WriteString(e.Title)
	if e.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Description)
	}
	if len(e.Skills) > 0 {
		names := make([]string, 0, len(e.Skills))
		for _, s := range e.Skills {
			names = append(names, s.Name)
		}
		sb.WriteString("\nSkills: ")
		sb.WriteString(strings.Join(names, ", "))
	}
	return sb.String()
}

func isCatalogFile(path string) bool {
	p := strings.ToLower(path)
	if strings.Contains(p, "/.git/") || strings.HasPrefix(filepath.Base(p), ".") {
		return false
	}
	switch filepath.Ext(p) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}
