package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seanblong/folio/internal/stream"
	"github.com/seanblong/folio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relayServer(t *testing.T, chunks ...stream.Chunk) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream.PrepareResponse(w)
		enc := stream.NewEncoder(w)
		for _, c := range chunks {
			if err := enc.Encode(c); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func TestAskPrintsProjectsThenAnswer(t *testing.T) {
	srv := relayServer(t,
		stream.ProjectChunk(models.ProjectRecord{
			ID: "p-shop", Title: "Storefront", Description: "Next.js shop.",
			GithubURL: "https://github.com/example/shop", RelevanceScore: 0.9,
			Skills: []models.Skill{{Name: "Next.js", RelevanceScore: 1}},
		}),
		stream.ProjectChunk(models.ProjectRecord{ID: "p-blog", Title: "Blog", RelevanceScore: 0.4}),
		stream.MessageChunk("Both use "),
		stream.MessageChunk("Next.js."),
	)

	out, err := run(t, "--endpoint", srv.URL, "which", "projects", "use", "Next.js?")
	require.NoError(t, err)

	assert.Contains(t, out, "1. Storefront (90%)")
	assert.Contains(t, out, "   skills: Next.js")
	assert.Contains(t, out, "   https://github.com/example/shop")
	assert.Contains(t, out, "2. Blog (40%)")
	assert.Contains(t, out, "Both use Next.js.\n")
	assert.Less(t, bytes.Index([]byte(out), []byte("Blog")), bytes.Index([]byte(out), []byte("Both use")))
}

func TestAskDirectAnswer(t *testing.T) {
	srv := relayServer(t, stream.MessageChunk("I'm currently building a relay in Go."))
	out, err := run(t, "--endpoint", srv.URL, "what are you working on currently?")
	require.NoError(t, err)
	assert.Equal(t, "I'm currently building a relay in Go.\n", out)
}

func TestAskErrors(t *testing.T) {
	srv := relayServer(t, stream.ErrorChunk("Failed to analyze query"))
	_, err := run(t, "--endpoint", srv.URL, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to analyze query")

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer failing.Close()
	_, err = run(t, "--endpoint", failing.URL, "hello")
	assert.Error(t, err)

	_, err = run(t, "--endpoint", srv.URL)
	assert.Error(t, err, "query is required")
}
