// Package main boots the marketplace ledger HTTP server.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/pkg/errors"

	"github.com/fairyhunter13/marketplace-ledger/internal/config"
	"github.com/fairyhunter13/marketplace-ledger/internal/events"
	"github.com/fairyhunter13/marketplace-ledger/internal/funds"
	httpapi "github.com/fairyhunter13/marketplace-ledger/internal/http"
	"github.com/fairyhunter13/marketplace-ledger/internal/ledger"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
	"github.com/fairyhunter13/marketplace-ledger/internal/queue"
	"github.com/fairyhunter13/marketplace-ledger/internal/store"
)

var build = "develop"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelpWanted) {
			usage, err := config.Usage(&cfg)
			if err != nil {
				return errors.Wrap(err, "generating usage")
			}
			fmt.Println(usage)
			return nil
		}
		return err
	}
	cfg.Version.SVN = build

	if err := obs.InitLogger(cfg.Log.Mode); err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer obs.Logger.Sync()
	if out, err := config.String(&cfg); err == nil {
		obs.Logger.Info("service_starting", "build", build, "config", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer := func(context.Context) error { return nil }
	if cfg.Trace.Enabled {
		var w io.Writer = os.Stdout
		if shutdownTracer, err = obs.InitTracer(cfg.Trace.ServiceName, cfg.Trace.SampleRatio, w); err != nil {
			return errors.Wrap(err, "init tracer")
		}
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}

	// Network sinks sit behind the relay so a slow broker never holds the
	// ledger lock.
	var network events.Fanout
	var closers []io.Closer
	if cfg.NATS.URL != "" {
		ns, err := events.DialNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return err
		}
		network = append(network, ns)
		closers = append(closers, ns)
	}
	if cfg.Redis.Addr != "" {
		rs, err := events.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Channel)
		if err != nil {
			return err
		}
		network = append(network, rs)
		closers = append(closers, rs)
	}

	journal := events.NewJournal()
	sinks := events.Fanout{journal, events.LogSink{}}
	var relay *queue.Manager
	if len(network) > 0 {
		relay = queue.NewManager(cfg.Relay, queue.New(cfg.Relay.OutBuffer), network)
		relay.Start(ctx)
		sinks = append(sinks, relay)
	}

	l, err := ledger.New(ctx, st, ledger.WithSink(sinks))
	if err != nil {
		return err
	}
	policy, err := ledger.ParseOverpaymentPolicy(cfg.Market.Overpayment)
	if err != nil {
		return err
	}
	var transfer funds.Transferrer
	if cfg.Gateway.URL != "" {
		transfer = funds.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.Timeout)
	}
	proc := ledger.NewProcessor(l, transfer, policy)

	app := httpapi.NewApp(cfg, l, proc, journal, relay)
	srv := &http.Server{
		Addr:              cfg.Web.Addr,
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: cfg.Web.ReadHeaderTimeout,
		ReadTimeout:       cfg.Web.ReadTimeout,
		WriteTimeout:      cfg.Web.WriteTimeout,
		IdleTimeout:       cfg.Web.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.Web.Addr, "store", cfg.Store.Driver, "overpayment", string(policy))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	stop := func(ctx context.Context) error {
		app.StartShutdown()
		if err := srv.Shutdown(ctx); err != nil {
			obs.Logger.Error("http_shutdown_error", "error", err)
		}
		if relay != nil {
			relay.CloseIntake()
			obs.Logger.Info("shutdown_drain_begin", "backlog_size", relay.BacklogSize(), "worker_count", relay.WorkerCount())
			if relay.DrainUntil(ctx) {
				obs.Logger.Info("shutdown_drain_complete")
			} else {
				obs.Logger.Warn("shutdown_drain_timeout", "stats", relay.Stats())
			}
			relay.Stop()
		}
		for _, c := range closers {
			if err := c.Close(); err != nil {
				obs.Logger.Warn("sink_close_error", "error", err)
			}
		}
		if err := st.Close(); err != nil {
			obs.Logger.Error("store_close_error", "error", err)
		}
		return shutdownTracer(ctx)
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.Web.ShutdownTimeout, map[string]gfshutdown.Operation{
		"marketplace": stop,
	})

	select {
	case err := <-serverErrors:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()
		_ = stop(ctx)
		return errors.Wrap(err, "http server")
	case code := <-wait:
		obs.Logger.Info("service_stopped", "exit_code", code)
		if code != 0 {
			return errors.Errorf("shutdown finished with exit code %d", code)
		}
		return nil
	}
}
