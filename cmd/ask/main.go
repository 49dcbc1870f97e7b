package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/seanblong/folio/internal/client"
	"github.com/seanblong/folio/pkg/models"
	"github.com/spf13/cobra"
)

const defaultEndpoint = "http://localhost:8080/api/search-projects"

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		endpoint string
		timeout  time.Duration
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:          "ask <query>",
		Short:        "Ask the portfolio a question and stream the answer",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("query must not be empty")
			}

			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()

			p := &printer{out: cmd.OutOrStdout()}
			sess := client.NewSession(endpoint,
				client.WithHTTPClient(&http.Client{}),
				client.WithLogger(logger),
				client.WithOnChange(p.update),
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			err := sess.Submit(ctx, query)
			p.finish()

			if st := sess.State(); st.IsError {
				return fmt.Errorf("%s", st.ErrorMessage)
			}
			return err
		},
	}

	env := os.Getenv("FOLIO_ENDPOINT")
	if env == "" {
		env = defaultEndpoint
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", env, "Relay URL (env FOLIO_ENDPOINT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log stream diagnostics to stderr")
	return cmd
}

// printer writes what arrived since the last state change: new project
// cards as they land, then the answer text as it grows.
type printer struct {
	out      io.Writer
	projects int
	text     int
}

func (p *printer) update(st client.State) {
	for ; p.projects < len(st.Projects); p.projects++ {
		if p.projects == 0 {
			fmt.Fprintln(p.out)
		}
		printProject(p.out, p.projects+1, st.Projects[p.projects])
	}
	if len(st.AIResponseText) > p.text {
		if p.text == 0 && p.projects > 0 {
			fmt.Fprintln(p.out)
		}
		fmt.Fprint(p.out, st.AIResponseText[p.text:])
		p.text = len(st.AIResponseText)
	}
}

func (p *printer) finish() {
	if p.text > 0 {
		fmt.Fprintln(p.out)
	}
}

func printProject(w io.Writer, n int, rec models.ProjectRecord) {
	fmt.Fprintf(w, "%d. %s (%.0f%%)\n", n, rec.Title, rec.RelevanceScore*100)
	if rec.Description != "" {
		fmt.Fprintf(w, "   %s\n", rec.Description)
	}
	if len(rec.Skills) > 0 {
		names := make([]string, 0, len(rec.Skills))
		for _, s := range rec.Skills {
			names = append(names, s.Name)
		}
		fmt.Fprintf(w, "   skills: %s\n", strings.Join(names, ", "))
	}
	for _, link := range []string{rec.GithubURL, rec.LiveURL} {
		if link != "" {
			fmt.Fprintf(w, "   %s\n", link)
		}
	}
}
