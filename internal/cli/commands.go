package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"studio/internal/domain"
	"studio/internal/publish"
)

func (a *App) submit(ctx context.Context, args []string) error {
	fs := a.flags("submit")
	kind := fs.String("kind", string(domain.JobKindVideo), "video or image")
	prompt := fs.String("prompt", "", "generation prompt")
	duration := fs.Int("duration", 0, "video duration in seconds")
	model := fs.String("model", "", "model name")
	resolution := fs.String("resolution", "", "output resolution")
	aspect := fs.String("aspect", "", "aspect ratio, e.g. 16:9")
	locale := fs.String("locale", "", "prompt locale")
	wait := fs.Bool("wait", false, "wait for the job to finish")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	k, err := domain.ParseJobKind(*kind)
	if err != nil {
		return err
	}
	req := domain.GenerationRequest{
		Kind:        k,
		Prompt:      *prompt,
		Duration:    *duration,
		Model:       *model,
		Resolution:  *resolution,
		AspectRatio: *aspect,
		Locale:      *locale,
	}

	if *wait {
		job, err := a.Jobs.Generate(ctx, req)
		if err != nil {
			return err
		}
		return a.printJSON(job)
	}
	job, err := a.Jobs.Create(ctx, req)
	if err != nil {
		return err
	}
	return a.printJSON(job)
}

func (a *App) status(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: status JOB_ID", ErrUsage)
	}
	job, err := a.Jobs.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return a.printJSON(job)
}

// wait polls a job recorded earlier until it finishes.
func (a *App) wait(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: wait JOB_ID", ErrUsage)
	}
	job, err := a.Jobs.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		if err := a.Waiter.Track(ctx, *job); err != nil {
			return err
		}
		final, err := a.Waiter.Wait(ctx, job.JobID)
		if err != nil {
			return err
		}
		job = &final
	}
	return a.printJSON(job)
}

func (a *App) jobs(ctx context.Context, args []string) error {
	list, err := a.Jobs.List(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(list))
	for _, job := range sortedJobs(list) {
		rows = append(rows, []string{job.JobID, string(job.Kind), string(job.Status), strconv.Itoa(job.Progress) + "%", job.ArtifactURL()})
	}
	a.table("JOB\tKIND\tSTATUS\tPROGRESS\tARTIFACT", rows)
	return nil
}

func (a *App) post(ctx context.Context, args []string) error {
	fs := a.flags("post")
	artifact := fs.String("artifact", "", "artifact url or data uri")
	caption := fs.String("caption", "", "post caption")
	media := fs.String("media", "", "image or video; inferred when empty")
	var connections, platforms stringList
	fs.Var(&connections, "connection", "connection id (repeatable)")
	fs.Var(&platforms, "platform", "post to the active connection of this platform (repeatable)")
	if err := a.parse(fs, args); err != nil {
		return err
	}

	ids := []string(connections)
	if len(platforms) > 0 {
		resolved, err := a.Integrations.ActiveConnectionIDs(ctx, platforms...)
		if err != nil {
			return err
		}
		ids = append(ids, resolved...)
	}
	result, err := a.Publisher.Publish(ctx, publish.Request{
		ConnectionIDs: ids,
		Caption:       *caption,
		ArtifactURL:   *artifact,
		MediaType:     domain.AssetKind(strings.ToLower(*media)),
	})
	if err != nil {
		return err
	}
	for _, u := range result.PostURLs {
		fmt.Fprintln(a.Stdout, u)
	}
	return nil
}

func (a *App) cache(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: cache SUBCOMMAND", ErrUsage)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		list, err := a.Artifacts.List(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, art := range list {
			data := art.Data
			if art.IsDataURI() {
				data = "(inline)"
			}
			rows = append(rows, []string{art.Key, art.Timestamp.Format("2006-01-02 15:04"), data})
		}
		a.table("KEY\tSTORED\tDATA", rows)
		return nil
	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("%w: cache get KEY", ErrUsage)
		}
		art, err := a.Artifacts.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		if art == nil {
			return fmt.Errorf("%w: no cached artifact for %q", domain.ErrNotFound, rest[0])
		}
		fmt.Fprintln(a.Stdout, art.Data)
		return nil
	case "set":
		if len(rest) != 2 {
			return fmt.Errorf("%w: cache set KEY DATA", ErrUsage)
		}
		_, err := a.Artifacts.Set(ctx, rest[0], rest[1])
		return err
	case "clear":
		if len(rest) == 0 {
			return a.Artifacts.ClearAll(ctx)
		}
		for _, key := range rest {
			if err := a.Artifacts.Clear(ctx, key); err != nil {
				return err
			}
		}
		return nil
	case "generate":
		return a.cacheGenerate(ctx, rest)
	case "export":
		fs := a.flags("cache export")
		out := fs.String("o", "artifacts.zip", "output file, - for stdout")
		if err := a.parse(fs, rest); err != nil {
			return err
		}
		archive, count, err := a.Exporter.Export(ctx)
		if err != nil {
			return err
		}
		if err := a.writeFile(*out, archive); err != nil {
			return err
		}
		if *out != "-" {
			fmt.Fprintf(a.Stdout, "exported %d artifacts to %s\n", count, *out)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown cache subcommand %q", ErrUsage, sub)
	}
}

func (a *App) cacheGenerate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: cache generate KEY -prompt TEXT", ErrUsage)
	}
	key := args[0]
	fs := a.flags("cache generate")
	prompt := fs.String("prompt", "", "image prompt")
	model := fs.String("model", "", "model name")
	aspect := fs.String("aspect", "", "aspect ratio")
	if err := a.parse(fs, args[1:]); err != nil {
		return err
	}
	art, created, err := a.Artifacts.GetOrCreate(ctx, key, func(ctx context.Context) (string, error) {
		job, err := a.Jobs.Generate(ctx, domain.GenerationRequest{
			Kind:        domain.JobKindImage,
			Prompt:      *prompt,
			Model:       *model,
			AspectRatio: *aspect,
		})
		if err != nil {
			return "", err
		}
		return job.ArtifactURL(), nil
	})
	if err != nil {
		return err
	}
	state := "cached"
	if created {
		state = "generated"
	}
	fmt.Fprintf(a.Stdout, "%s\t%s\t%s\n", art.Key, state, art.Data)
	return nil
}

func (a *App) sources(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: sources SUBCOMMAND", ErrUsage)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		fs := a.flags("sources list")
		kindFlag := fs.String("kind", "", "document, website or competitor")
		if err := a.parse(fs, rest); err != nil {
			return err
		}
		kind, err := domain.ParseSourceKind(*kindFlag)
		if err != nil {
			return err
		}
		list, err := a.Sources.List(ctx, kind)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, s := range list {
			label := s.Name
			if s.URL != "" {
				label = strings.TrimSpace(label + " " + s.URL)
			}
			rows = append(rows, []string{s.ID, string(s.Kind), label})
		}
		a.table("ID\tKIND\tSOURCE", rows)
		return nil
	case "import":
		if len(rest) != 1 {
			return fmt.Errorf("%w: sources import DIR", ErrUsage)
		}
		added, err := a.Sources.ImportDirectory(ctx, rest[0])
		for _, s := range added {
			fmt.Fprintf(a.Stdout, "added %s (%s)\n", s.Name, s.ID)
		}
		return err
	case "website":
		if len(rest) != 1 {
			return fmt.Errorf("%w: sources website URL", ErrUsage)
		}
		s, err := a.Sources.AddWebsite(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "added %s (%s)\n", s.Name, s.ID)
		return nil
	case "competitor":
		if len(rest) != 2 {
			return fmt.Errorf("%w: sources competitor NAME URL", ErrUsage)
		}
		s, err := a.Sources.AddCompetitor(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "added %s (%s)\n", s.Name, s.ID)
		return nil
	case "remove":
		if len(rest) != 1 {
			return fmt.Errorf("%w: sources remove ID", ErrUsage)
		}
		return a.Sources.Remove(ctx, rest[0])
	case "context":
		summary, err := a.Sources.Context(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Stdout, summary)
		return nil
	default:
		return fmt.Errorf("%w: unknown sources subcommand %q", ErrUsage, sub)
	}
}

func (a *App) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: login TOKEN", ErrUsage)
	}
	if err := a.Credentials.SetBackendToken(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, "backend token stored")
	return nil
}
