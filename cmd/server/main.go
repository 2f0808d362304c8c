package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	persistlog "voxelterrain.ai/internal/persistence/log"
	"voxelterrain.ai/internal/sim/chunkmgr"
	"voxelterrain.ai/internal/sim/registry"
	"voxelterrain.ai/internal/sim/scene"
	"voxelterrain.ai/internal/sim/tuning"
	"voxelterrain.ai/internal/terrain/generator"
	"voxelterrain.ai/internal/transport/observer"
	"voxelterrain.ai/internal/voxel/chunk"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 0, "world seed (overrides tuning when set)")
		genName    = flag.String("generator", "", "elevation provider: hash or simplex (overrides tuning when set)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml or tuning.toml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite chunk event index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
		tune.Normalize()
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			tune.Seed = *seed
		case "generator":
			tune.Generator = strings.ToLower(strings.TrimSpace(*genName))
		}
	})
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	eventLog := persistlog.NewEventLogger(worldDir)
	defer eventLog.Close()
	sinks := []chunkmgr.EventSink{eventLog}
	if idx != nil {
		sinks = append(sinks, idx)
	}

	provider, err := generator.FromTuning(tune, 0)
	if err != nil {
		logger.Fatalf("provider: %v", err)
	}

	hub := observer.NewHub(log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))
	graph := scene.NewGraph()
	mgr := chunkmgr.New(chunkmgr.Config{
		ViewDistance:  tune.ViewDistance,
		Dims:          chunk.Dims{Size: tune.ChunkSize, Height: tune.ChunkHeight},
		Workers:       tune.Workers,
		ColumnWorkers: tune.ColumnWorkers,
		FallbackSeed:  tune.EffectiveFallbackSeed(),
		PaletteTop:    tune.PaletteTop,
	}, provider, registry.NewMemory(), scene.Fanout{graph, hub},
		chunkmgr.WithLogger(log.New(os.Stdout, "[chunks] ", log.LstdFlags|log.Lmicroseconds)),
		chunkmgr.WithEventSinks(sinks...),
	)
	defer mgr.Close()
	hub.OnView(func(x, z float64) { mgr.SetView(chunkmgr.View{X: x, Z: z}) })
	mgr.SetView(chunkmgr.View{})

	ws := &worldState{
		tune:      tune,
		mgr:       mgr,
		idx:       idx,
		observers: hub.Sessions,
		triangles: graph.TriangleCount,
	}
	ws.seed.Store(tune.Seed)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", ws.metricsHandler())

	obsSrv := observer.NewServer(hub, ws.params, logger)
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())

	if envBool("VT_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/stats", ws.statsHandler())
		mux.HandleFunc("/admin/v1/history", ws.historyHandler())
		mux.HandleFunc("/admin/v1/reseed", ws.reseedHandler())
	} else {
		logger.Printf("admin endpoints disabled (VT_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VT_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := mgr.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Printf("listening on %s (world=%s seed=%d generator=%s)", *addr, *worldID, tune.Seed, tune.Generator)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
	st := mgr.Stats()
	logger.Printf("shutdown: loaded=%d unloaded=%d failed=%d discarded=%d", st.Loaded, st.Unloaded, st.Failed, st.Discarded)
}
