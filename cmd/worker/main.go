package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/studio"
)

func main() {
	once := flag.Bool("once", false, "drain in-flight jobs and pending archives, then exit")
	workers := flag.Int("workers", 4, "concurrent artifact downloads")
	sweep := flag.Duration("sweep", time.Minute, "interval between archive sweeps")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := studio.New(ctx, cfg, &logger, studio.Options{ArchiveOnComplete: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to assemble studio")
	}
	defer st.Close()

	w := &archiveWorker{st: st, logger: &logger, workers: *workers}
	if err := w.run(ctx, *once, *sweep); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
		return
	}
	logger.Info().Msg("worker: stopped")
}

type archiveWorker struct {
	st      *studio.Studio
	logger  *infra.Logger
	workers int
}

// run resumes every in-flight job and keeps archiving completed artifacts
// until ctx ends. With once set it returns after the in-flight jobs finish
// and one final sweep.
func (w *archiveWorker) run(ctx context.Context, once bool, every time.Duration) error {
	resumed, err := w.st.Tracker.Resume(ctx)
	if err != nil {
		return err
	}
	w.logger.Info().Int("resumed", resumed).Msg("worker: started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.drain(gctx) })

	if once {
		if err := g.Wait(); err != nil {
			return err
		}
		return w.sweep(ctx)
	}

	g.Go(func() error {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			if err := w.sweep(gctx); err != nil {
				return err
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}

// drain waits for every job that is still being polled.
func (w *archiveWorker) drain(ctx context.Context) error {
	list, err := w.st.Jobs.List(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range list {
		if job.Status.Terminal() || !w.st.Jobs.Polling(job.JobID) {
			continue
		}
		g.Go(func() error {
			final, err := w.st.Tracker.Wait(gctx, job.JobID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				w.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("worker: job did not complete")
				return nil
			}
			w.logger.Info().Str("job_id", final.JobID).Str("status", string(final.Status)).Msg("worker: job finished")
			return nil
		})
	}
	return g.Wait()
}

func (w *archiveWorker) sweep(ctx context.Context) error {
	list, err := w.st.Jobs.List(ctx)
	if err != nil {
		return err
	}
	completed := make([]domain.GenerationJob, 0, len(list))
	for _, job := range list {
		if job.Status == domain.JobStatusCompleted {
			completed = append(completed, job)
		}
	}
	archived, err := w.st.Archiver.ArchivePending(ctx, completed, w.workers)
	if err != nil {
		return err
	}
	if archived > 0 {
		w.logger.Info().Int("archived", archived).Msg("worker: archived pending artifacts")
	}
	return nil
}
