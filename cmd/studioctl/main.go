package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"studio/internal/cli"
	"studio/internal/infra"
	"studio/internal/studio"
)

func main() {
	verbose := flag.Bool("v", false, "log component activity to stderr")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: studioctl [-v] COMMAND [ARGS]; run studioctl help for commands")
	}
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "studioctl:", err)
		os.Exit(1)
	}
	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	st, err := studio.New(ctx, cfg, &logger, studio.Options{})
	if err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "studioctl:", err)
		os.Exit(1)
	}

	app := &cli.App{
		Jobs:         st.Jobs,
		Waiter:       st.Tracker,
		Artifacts:    st.Cache,
		Exporter:     st.Exporter,
		Publisher:    st.Publisher,
		Sources:      st.Sources,
		Integrations: st.Integrations,
		Credentials:  st.Credentials,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}
	code := app.Main(ctx, flag.Args())

	st.Close()
	stop()
	os.Exit(code)
}
