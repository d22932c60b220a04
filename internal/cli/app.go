// Package cli implements studioctl, a command-line client for the studio.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"studio/internal/backend"
	"studio/internal/cache"
	"studio/internal/domain"
	"studio/internal/publish"
)

// ErrUsage is returned for unknown commands and bad flags.
var ErrUsage = errors.New("usage error")

type Jobs interface {
	Create(ctx context.Context, req domain.GenerationRequest) (domain.GenerationJob, error)
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationJob, error)
	Get(ctx context.Context, jobID string) (*domain.GenerationJob, error)
	List(ctx context.Context) ([]domain.GenerationJob, error)
}

// Waiter blocks until a tracked job reaches a terminal status.
type Waiter interface {
	Track(ctx context.Context, job domain.GenerationJob) error
	Wait(ctx context.Context, jobID string) (domain.GenerationJob, error)
}

type Artifacts interface {
	Get(ctx context.Context, key string) (*domain.CachedArtifact, error)
	Set(ctx context.Context, key, data string) (*domain.CachedArtifact, error)
	Clear(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
	List(ctx context.Context) ([]domain.CachedArtifact, error)
	GetOrCreate(ctx context.Context, key string, generate cache.GenerateFunc) (*domain.CachedArtifact, bool, error)
}

type Exporter interface {
	Export(ctx context.Context) ([]byte, int, error)
}

type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (*publish.Result, error)
}

type Sources interface {
	AddWebsite(ctx context.Context, rawURL string) (*domain.BrandContextSource, error)
	AddCompetitor(ctx context.Context, name, rawURL string) (*domain.BrandContextSource, error)
	ImportDirectory(ctx context.Context, dir string) ([]domain.BrandContextSource, error)
	List(ctx context.Context, kind domain.SourceKind) ([]domain.BrandContextSource, error)
	Remove(ctx context.Context, id string) error
	Context(ctx context.Context) (string, error)
}

type Integrations interface {
	ActiveConnectionIDs(ctx context.Context, platforms ...string) ([]string, error)
}

type Credentials interface {
	SetBackendToken(ctx context.Context, token string) error
}

// App dispatches studioctl commands.
type App struct {
	Jobs         Jobs
	Waiter       Waiter
	Artifacts    Artifacts
	Exporter     Exporter
	Publisher    Publisher
	Sources      Sources
	Integrations Integrations
	Credentials  Credentials

	Stdout io.Writer
	Stderr io.Writer
}

// Command handlers must not reference commands; usage lives in Run.
type command struct {
	name  string
	usage string
	run   func(a *App, ctx context.Context, args []string) error
}

var commands = []command{
	{"submit", "submit -prompt TEXT [-kind video|image] [-duration N] [-model M] [-resolution R] [-aspect A] [-wait]", (*App).submit},
	{"status", "status JOB_ID", (*App).status},
	{"wait", "wait JOB_ID", (*App).wait},
	{"jobs", "jobs", (*App).jobs},
	{"post", "post -artifact URL [-caption TEXT] [-connection ID]... [-platform NAME]...", (*App).post},
	{"cache", "cache list | get KEY | set KEY DATA | clear [KEY] | generate KEY -prompt TEXT | export -o FILE", (*App).cache},
	{"sources", "sources list [-kind K] | import DIR | website URL | competitor NAME URL | remove ID | context", (*App).sources},
	{"login", "login TOKEN", (*App).login},
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return ErrUsage
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(a, ctx, args[1:])
		}
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.usage()
		return nil
	}
	fmt.Fprintf(a.Stderr, "unknown command %q\n", args[0])
	a.usage()
	return ErrUsage
}

func (a *App) usage() {
	fmt.Fprintln(a.Stderr, "usage: studioctl COMMAND [ARGS]")
	for _, cmd := range commands {
		fmt.Fprintf(a.Stderr, "  %s\n", cmd.usage)
	}
}

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	return fs
}

func (a *App) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe turns backend errors into the message a user should see.
func describe(err error) string {
	switch {
	case backend.IsStillProcessing(err):
		return backend.ErrTimeout.Error()
	case backend.IsUnreachable(err):
		return backend.ErrUnreachable.Error()
	}
	if apiErr, ok := backend.AsAPIError(err); ok {
		return apiErr.Message
	}
	var jobErr *domain.JobError
	if errors.As(err, &jobErr) {
		return jobErr.Message
	}
	return err.Error()
}

// Main runs the app and maps the outcome to a process exit code. A timed-out
// request exits 0: the backend may still finish the work.
func (a *App) Main(ctx context.Context, args []string) int {
	err := a.Run(ctx, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	case backend.IsStillProcessing(err):
		fmt.Fprintln(a.Stderr, describe(err))
		return 0
	default:
		fmt.Fprintln(a.Stderr, "error:", describe(err))
		return 1
	}
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

func (a *App) table(header string, rows [][]string) {
	tw := tabwriter.NewWriter(a.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

func (a *App) writeFile(path string, data []byte) error {
	if path == "-" {
		_, err := a.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func sortedJobs(list []domain.GenerationJob) []domain.GenerationJob {
	out := append([]domain.GenerationJob(nil), list...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
