// Package app assembles the server process: it fetches the level definitions
// payload, builds the catalog, the hub and the HTTP surface, and hands the
// frame loop and listener to the service runner as workers.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pixil98/go-service"

	"gridrun/server/internal/config"
	"gridrun/server/internal/fetch"
	"gridrun/server/internal/hub"
	servernet "gridrun/server/internal/net"
	"gridrun/server/internal/sim"
	"gridrun/server/internal/telemetry"
	"gridrun/server/levels/catalog"
	"gridrun/server/logging"
	"gridrun/server/logging/sinks"
)

// fetchTimeout bounds the bootstrap fetch of the level definitions payload.
const fetchTimeout = 10 * time.Second

// BuildWorkers assembles the frame loop and HTTP listener workers from a
// validated configuration.
func BuildWorkers(cfg interface{}) (service.WorkerList, error) {
	c, ok := cfg.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	logger := telemetry.WrapLogger(log.New(os.Stdout, "", log.LstdFlags))
	metrics := telemetry.NewCounters()

	logCfg := logging.DefaultConfig()
	router, err := logging.NewRouter(nil, logCfg, []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsole(os.Stdout, logCfg.Console)},
	})
	if err != nil {
		return nil, fmt.Errorf("constructing logging router: %w", err)
	}

	resolver, err := buildCatalog(c, logger)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("closing logging router: %v", cerr)
		}
		return nil, err
	}

	h := hub.New(hub.Config{
		Session: sim.Config{
			SimulationsPerSecond: c.Simulation.SimulationsPerSecond,
			RespawnFrames:        c.Simulation.RespawnFrames,
			SpawnPoint:           sim.Point{X: c.Simulation.SpawnX, Y: c.Simulation.SpawnY},
		},
		Loop: sim.LoopConfig{
			CatchupMaxFrames: c.Intake.CatchupMaxFrames,
			CommandCapacity:  c.Intake.CommandCapacity,
			PerPlayerLimit:   c.Intake.PerPlayerLimit,
		},
		FramesPerBroadcast: c.Broadcast.FramesPerBroadcast,
		KeyframeInterval:   c.Broadcast.KeyframeInterval,
		KeyframeCapacity:   c.Journal.KeyframeCapacity,
		KeyframeMaxAge:     c.Journal.MaxAge(),
	}, hub.Deps{
		Pub:     router,
		Log:     logger,
		Metrics: metrics,
	})

	handler := servernet.NewHTTPHandler(h, servernet.HTTPHandlerConfig{
		Log:     logger,
		Pub:     router,
		Catalog: resolver,
	})

	return service.WorkerList{
		"loop":     &loopWorker{hub: h, router: router, log: logger},
		"listener": &httpWorker{addr: c.Listener.Addr(), handler: handler, log: logger},
	}, nil
}

// buildCatalog races the configured definition sources and resolves the
// winning payload. Default paths are optional: when nothing is found the
// server starts with an empty catalog. Explicitly configured sources must
// yield a payload.
func buildCatalog(c *config.Config, logger telemetry.Logger) (*catalog.Resolver, error) {
	sources, err := c.Levels.NewSources()
	if err != nil {
		return nil, fmt.Errorf("building level sources: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	res, err := fetch.Race(ctx, sources...)
	if err != nil {
		if len(c.Levels.Sources) > 0 {
			return nil, fmt.Errorf("fetching level definitions: %w", err)
		}
		logger.Printf("no level definitions on default paths, starting with an empty catalog: %v", err)
		return catalog.NewResolver()
	}

	resolver, err := catalog.NewResolver(catalog.Memory(res.Source, res.Data))
	if err != nil {
		return nil, fmt.Errorf("loading level catalog: %w", err)
	}
	logger.Printf("level catalog loaded %d definitions from %s", resolver.Len(), res.Source)
	return resolver, nil
}
