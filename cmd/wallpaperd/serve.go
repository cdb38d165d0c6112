package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cosmic-wall/wallpaperd/internal/cache"
	"github.com/cosmic-wall/wallpaperd/internal/loader"
	"github.com/cosmic-wall/wallpaperd/internal/orchestrator"
	"github.com/cosmic-wall/wallpaperd/internal/procconfig"
	"github.com/cosmic-wall/wallpaperd/internal/scheduler"
	"github.com/cosmic-wall/wallpaperd/internal/state"
	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
	"github.com/cosmic-wall/wallpaperd/internal/wloutput"
	"github.com/cosmic-wall/wallpaperd/internal/wlproto"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the wallpaper daemon",
		Long:  "Connect to the Wayland compositor, attach a background layer surface to every output, and render wallpapers until signaled to stop.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	return cmd
}

func serve(parentCtx context.Context) error {
	cfg, err := procconfig.Load()
	if err != nil {
		return err
	}
	configureLogging(cfg.LogLevel)

	log.Info().
		Str("config", cfg.ConfigFilePath()).
		Str("state", cfg.StateFilePath()).
		Str("wayland_display", cfg.WaylandDisplay).
		Msg("starting wallpaperd")

	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, err := wlproto.Connect(cfg.WaylandDisplay)
	if err != nil {
		return err
	}
	shell, err := wlproto.BindLayerShell(g)
	if err != nil {
		return err
	}
	rawOutputs, err := wlproto.DiscoverOutputs(g)
	if err != nil {
		return err
	}

	imageCache, err := cache.New(cfg.CacheMaxEntries, cfg.CacheMaxBytes)
	if err != nil {
		return err
	}
	stateStore := state.Load(cfg.StateFilePath())
	sched := scheduler.New()

	ld := loader.New(ctx)

	redraws := make(chan wloutput.Name, 16)

	orch := orchestrator.New(orchestrator.Dependencies{
		Scheduler:  sched,
		LoaderCmds: ld.Commands(),
		LoaderRes:  ld.Results(),
		StateStore: stateStore,
		ImageCache: imageCache,
		Redraws:    redraws,
	})

	ingest, err := wallpaperconfig.NewIngest(cfg.ConfigFilePath(), log.Logger)
	if err != nil {
		return err
	}
	initialDiff := ingest.LoadInitial()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ingest.Run(ctx, orch.Diffs())
	}()

	select {
	case orch.Diffs() <- initialDiff:
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	}

	attachOutput := func(regName uint32, raw *client.Output) {
		name, err := wlproto.ResolveOutputName(g, regName, raw)
		if err != nil {
			log.Warn().Err(err).Uint32("reg_name", regName).Msg("[serve] failed to resolve output name")
			return
		}
		out, err := wloutput.New(name, raw, g, shell, redraws)
		if err != nil {
			log.Warn().Err(err).Str("output", name).Msg("[serve] failed to attach background surface")
			return
		}
		orch.AddOutput(out)
	}

	for regName, raw := range rawOutputs {
		attachOutput(regName, raw)
	}

	wlproto.WatchOutputs(g,
		attachOutput,
		func(regName uint32) { /* output removal is detected via the layer surface's own closed event */ },
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		pumpWaylandEvents(ctx, g)
	}()

	runErr := orch.Run(ctx)
	cancel()
	wg.Wait()

	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

// pumpWaylandEvents services the Wayland display's event queue so
// configure/geometry/mode callbacks wired by wloutput.Output keep firing
// while the Orchestrator's own loop is blocked on its select.
func pumpWaylandEvents(ctx context.Context, g *wlproto.Globals) {
	ticker := time.NewTicker(8 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.Display.Context().Dispatch(); err != nil {
				log.Warn().Err(err).Msg("[serve] wayland dispatch error")
				return
			}
		}
	}
}

func configureLogging(levelName string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
