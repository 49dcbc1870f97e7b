package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog"
	"github.com/seanblong/folio/internal/ai"
	"github.com/seanblong/folio/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockProjectStore implements ProjectStore for testing
type MockProjectStore struct {
	GetProjectHashFunc func(ctx context.Context, id string) (string, bool, error)
	UpsertProjectFunc  func(ctx context.Context, e models.CatalogEntry, vec []float32, hash string) error

	mu       sync.Mutex
	upserted []models.CatalogEntry
	hashes   map[string]string
}

func (m *MockProjectStore) GetProjectHash(ctx context.Context, id string) (string, bool, error) {
	if m.GetProjectHashFunc != nil {
		return m.GetProjectHashFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[id]
	return h, ok, nil
}

func (m *MockProjectStore) UpsertProject(ctx context.Context, e models.CatalogEntry, vec []float32, hash string) error {
	if m.UpsertProjectFunc != nil {
		if err := m.UpsertProjectFunc(ctx, e, vec, hash); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes == nil {
		m.hashes = map[string]string{}
	}
	m.hashes[e.ID] = hash
	m.upserted = append(m.upserted, e)
	return nil
}

func (m *MockProjectStore) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.upserted))
	for _, e := range m.upserted {
		out = append(out, e.ID)
	}
	sort.Strings(out)
	return out
}

// MockAIClient implements ai.Client for testing
type MockAIClient struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	mu     sync.Mutex
	embeds []string
}

func (m *MockAIClient) Chat(ctx context.Context, messages []ai.Message, tools []ai.Tool) (ai.Message, error) {
	return ai.Message{}, errors.New("not used")
}

func (m *MockAIClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (m *MockAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.embeds = append(m.embeds, text)
	m.mu.Unlock()
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockAIClient) Dim() int { return 3 }

// MockFileSystemWalker calls the callback for each listed path with a nil
// Dirent.
type MockFileSystemWalker struct {
	FilesToProcess []string
	WalkError      error
}

func (m *MockFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	if m.WalkError != nil {
		return m.WalkError
	}
	for _, p := range m.FilesToProcess {
		if err := options.Callback(p, nil); err != nil {
			return err
		}
	}
	return nil
}

// MockFileReader serves file contents from a map.
type MockFileReader struct {
	Files map[string]string
}

func (m *MockFileReader) ReadFile(filename string) ([]byte, error) {
	s, ok := m.Files[filename]
	if !ok {
		return nil, errors.New("file not found")
	}
	return []byte(s), nil
}

const shopYAML = `
id: p-shop
title: Storefront
description: |
  Next.js storefront with Stripe checkout.
github_url: https://github.com/example/shop
skills:
  - name: Next.js
    category: framework
    weight: 0.9
  - name: Stripe
    category: payments
`

const multiYAML = `
id: p-blog
title: Blog
description: Static blog.
skills:
  - name: Hugo
---
id: p-cli
title: CLI
description: A Go command line tool.
skills:
  - name: Go
    category: language
`

func newLoader(files map[string]string, st *MockProjectStore, client ai.Client) *Loader {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return NewWithDependencies(st, "/catalog", client,
		&MockFileSystemWalker{FilesToProcess: paths},
		&MockFileReader{Files: files})
}

func TestLoader_Run(t *testing.T) {
	files := map[string]string{
		"/catalog/shop.yaml":   shopYAML,
		"/catalog/more.yml":    multiYAML,
		"/catalog/README.md":   "# not a project",
		"/catalog/.hidden.yml": shopYAML,
	}
	st := &MockProjectStore{}
	client := &MockAIClient{}
	stats, err := newLoader(files, st, client).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"p-blog", "p-cli", "p-shop"}
	if got := st.ids(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected upserts %v, got %v", want, got)
	}
	if stats.Indexed != 3 || stats.Skipped != 0 || stats.Failed != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if len(client.embeds) != 3 {
		t.Errorf("Expected 3 embeddings, got %d", len(client.embeds))
	}
	for _, text := range client.embeds {
		if strings.HasPrefix(text, "Storefront") && !strings.Contains(text, "Skills: Next.js, Stripe") {
			t.Errorf("Expected skills in embedding text, got %q", text)
		}
	}
}

func TestLoader_SkipsUnchanged(t *testing.T) {
	files := map[string]string{"/catalog/shop.yaml": shopYAML}
	st := &MockProjectStore{}
	client := &MockAIClient{}

	if _, err := newLoader(files, st, client).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Same content, different formatting.
	files["/catalog/shop.yaml"] = strings.ReplaceAll(shopYAML, "title: Storefront", "title:    Storefront  ")
	stats, err := newLoader(files, st, client).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 1 || stats.Indexed != 0 {
		t.Errorf("Expected unchanged entry to be skipped, got %+v", stats)
	}
	if len(client.embeds) != 1 {
		t.Errorf("Expected no new embedding, got %d", len(client.embeds))
	}

	ld := newLoader(files, st, client)
	ld.Force = true
	stats, err = ld.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 1 {
		t.Errorf("Expected forced reindex, got %+v", stats)
	}

	files["/catalog/shop.yaml"] = strings.ReplaceAll(shopYAML, "Stripe checkout", "PayPal checkout")
	stats, err = newLoader(files, st, client).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 1 {
		t.Errorf("Expected changed entry to be reindexed, got %+v", stats)
	}
}

func TestLoader_InvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "title: No ID\n"},
		{"missing title", "id: p-x\n"},
		{"bad url", "id: p-x\ntitle: X\ngithub_url: not a url\n"},
		{"unnamed skill", "id: p-x\ntitle: X\nskills:\n  - category: db\n"},
		{"negative weight", "id: p-x\ntitle: X\nskills:\n  - name: Go\n    weight: -1\n"},
		{"not yaml", "id: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &MockProjectStore{}
			files := map[string]string{"/catalog/bad.yaml": tt.yaml, "/catalog/shop.yaml": shopYAML}
			stats, err := newLoader(files, st, &MockAIClient{}).Run(context.Background())
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if stats.Failed != 1 || stats.Indexed != 1 {
				t.Errorf("Expected one failure and one indexed entry, got %+v", stats)
			}
		})
	}
}

func TestLoader_DuplicateIDs(t *testing.T) {
	files := map[string]string{
		"/catalog/a.yaml": shopYAML,
		"/catalog/b.yaml": shopYAML,
	}
	st := &MockProjectStore{}
	stats, err := newLoader(files, st, &MockAIClient{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 1 || stats.Failed != 1 {
		t.Errorf("Expected duplicate to fail, got %+v", stats)
	}
}

func TestLoader_EmbedFailureStillStores(t *testing.T) {
	var gotVec []float32
	st := &MockProjectStore{
		UpsertProjectFunc: func(ctx context.Context, e models.CatalogEntry, vec []float32, hash string) error {
			gotVec = vec
			return nil
		},
	}
	client := &MockAIClient{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	stats, err := newLoader(map[string]string{"/catalog/shop.yaml": shopYAML}, st, client).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 1 {
		t.Errorf("Expected entry stored, got %+v", stats)
	}
	if gotVec != nil {
		t.Errorf("Expected nil vector, got %v", gotVec)
	}
}

func TestLoader_UpsertFailure(t *testing.T) {
	st := &MockProjectStore{
		UpsertProjectFunc: func(ctx context.Context, e models.CatalogEntry, vec []float32, hash string) error {
			return errors.New("connection reset")
		},
	}
	stats, err := newLoader(map[string]string{"/catalog/more.yml": multiYAML}, st, &MockAIClient{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 2 {
		t.Errorf("Expected 2 failures, got %+v", stats)
	}
}

func TestLoader_WalkError(t *testing.T) {
	ld := NewWithDependencies(&MockProjectStore{}, "/catalog", &MockAIClient{},
		&MockFileSystemWalker{WalkError: errors.New("permission denied")},
		&MockFileReader{})
	if _, err := ld.Run(context.Background()); err == nil {
		t.Error("Expected walk error")
	}
}

func TestLoader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ld := newLoader(map[string]string{"/catalog/shop.yaml": shopYAML}, &MockProjectStore{}, &MockAIClient{})
	if _, err := ld.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestIsCatalogFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/c/a.yaml", true},
		{"/c/a.YML", true},
		{"/c/a.json", false},
		{"/c/.a.yaml", false},
		{"/c/.git/config.yaml", false},
	}
	for _, tt := range tests {
		if got := isCatalogFile(tt.path); got != tt.want {
			t.Errorf("isCatalogFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
