// Command server runs the signaling process: it wires configuration, the
// room registry, the latent-room store, the janitor sweep, and the two
// listeners (WebSocket signaling, HTTP API) together, then waits for either
// a fatal listener error or an OS signal. Grounded almost unchanged on the
// teacher's cmd/app.go wiring and shutdown sequence (signal.NotifyContext,
// WaitGroup, buffered error channel fan-in), extended with one more Run
// loop for the janitor and a debug-dump signal hook.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	appconfig "github.com/adwski/meetsignal/internal/config"
	"github.com/adwski/meetsignal/internal/dispatcher"
	"github.com/adwski/meetsignal/internal/httpapi"
	"github.com/adwski/meetsignal/internal/janitor"
	"github.com/adwski/meetsignal/internal/latent"
	"github.com/adwski/meetsignal/internal/registry"
	"github.com/adwski/meetsignal/internal/wsserver"
)

const version = "0.1.0"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := appconfig.Load(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.Level(cfg.ParsedLogLevel())

	latentStore := latent.New(latent.Config{
		Path:   cfg.LatentStorePath,
		Logger: &logger,
	})
	seed, err := latentStore.LoadFresh(cfg.LatentRoomMaxAge())
	if err != nil {
		logger.Error().Err(err).Msg("failed to load latent room store, starting empty")
	}

	reg := registry.New(registry.Config{
		Logger:           &logger,
		Latent:           latentStore,
		MaxLatentRooms:   cfg.MaxLatentRooms,
		LatentRoomMaxAge: cfg.LatentRoomMaxAge(),
	})
	reg.SeedLatentRooms(seed)

	disp := dispatcher.New(dispatcher.Config{
		Registry: reg,
		Logger:   &logger,
	})

	j := janitor.New(janitor.Config{
		Logger:          &logger,
		Registry:        reg,
		RoomMaxAge:      cfg.RoomMaxAge,
		CleanupInterval: cfg.RoomCleanupInterval,
	})

	wsSrv := wsserver.NewServer(wsserver.Config{
		Logger:     &logger,
		Dispatcher: disp,
		ListenAddr: cfg.WSListenAddr,
	})
	apiSrv := httpapi.NewServer(httpapi.Config{
		Logger:     &logger,
		Registry:   reg,
		ListenAddr: cfg.APIListenAddr,
		StaticDir:  cfg.StaticDir,
		IceServers: iceServersFromConfig(cfg),
		Version:    version,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go watchDebugSignal(ctx, reg, &logger)

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 3)
	)
	wg.Add(3)
	go wsSrv.Run(ctx, wg, errc)
	go apiSrv.Run(ctx, wg, errc)
	go j.Run(ctx, wg, errc)

	select {
	case runErr := <-errc:
		logger.Error().Err(runErr).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}

func iceServersFromConfig(cfg *appconfig.Config) []httpapi.IceServer {
	if cfg.TURNServerURL == "" {
		return nil
	}
	return []httpapi.IceServer{{
		URLs:       cfg.TURNServerURL,
		Username:   cfg.TURNServerUsername,
		Credential: cfg.TURNServerCredential,
	}}
}

// watchDebugSignal dumps registry state to stderr on SIGUSR1, a manual
// inspection hook with no production callers.
func watchDebugSignal(ctx context.Context, reg *registry.Registry, logger *zerolog.Logger) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGUSR1)
	defer signal.Stop(sigc)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigc:
			logger.Info().Msg("dumping registry state")
			os.Stderr.WriteString(reg.DumpState())
		}
	}
}
