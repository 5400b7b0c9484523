package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"

	"hrguard/guard"
	"hrguard/guard/api"
	"hrguard/guard/audit"
	"hrguard/guard/authid"
	"hrguard/guard/compression"
	"hrguard/guard/config"
	"hrguard/guard/connlimit"
	"hrguard/guard/http3"
	"hrguard/guard/metrics"
	"hrguard/guard/monitor"
	"hrguard/guard/ratelimit"
	"hrguard/guard/reload"
	"hrguard/guard/requestid"
	"hrguard/guard/threat"
	"hrguard/guard/webhook"
)

const version = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "hrguard",
		Usage:   "request defense and security monitoring proxy",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to YAML config file",
				EnvVars: []string{"HRGUARD_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "guarded traffic listen address (overrides config)",
				EnvVars: []string{"HRGUARD_LISTEN"},
			},
			&cli.StringFlag{
				Name:    "admin-listen",
				Usage:   "admin API listen address (overrides config)",
				EnvVars: []string{"HRGUARD_ADMIN_LISTEN"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if addr := c.String("listen"); addr != "" {
		cfg.Server.Listen = addr
	}
	if addr := c.String("admin-listen"); addr != "" {
		cfg.Server.AdminListen = addr
	}

	// Defense components. The gate doubles as the monitor's blocker; the
	// gate's flood sink feeds critical events back into the monitor.
	meter := ratelimit.NewMeter(cfg.RateLimiter())
	var mon *monitor.Monitor
	gate := connlimit.NewGate(cfg.Gate(), func(identity string, recent int) {
		mon.Record(monitor.Event{
			Type:     monitor.EventDDoSDetected,
			Severity: monitor.SeverityCritical,
			Identity: identity,
			Details:  map[string]any{"requests_last_minute": recent},
		})
	})

	feed := api.NewLiveFeed()
	defer feed.Close()

	var notifiers []monitor.Notifier
	notifiers = append(notifiers, feed, metrics.AlertNotifier{})
	if cfg.Webhook.Enabled {
		notifiers = append(notifiers, webhook.NewNotifier(cfg.Webhook))
	}

	mon = monitor.New(cfg.MonitorOptions(), gate, notifiers...)

	trail := audit.NewTrail(cfg.Audit)
	extractor := authid.NewExtractor(cfg.Auth)
	pipeline := guard.NewPipeline(meter, gate, threat.NewDetector(), mon, extractor, trail, cfg.Server.TrustedAgents)

	// The background sweep also prunes the gates and refreshes gauges.
	mon.AddSweeper(meter)
	mon.AddSweeper(gate)
	mon.AddSweeper(pipeline)
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	// Optional hot reload of the user-agent deny list.
	if path := cfg.Monitor.DenyListFile; path != "" {
		watcher, err := reload.NewWatcher(reload.Config{DenyListPath: path}, mon.SetUserAgentDenyList)
		if err != nil {
			return err
		}
		defer watcher.Stop()
	}

	// Guarded application surface.
	appMux := http.NewServeMux()
	appMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	guarded := requestid.Middleware(pipeline.Handler(appMux))

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           guarded,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Admin surface: security API, live feed, metrics.
	adminAPI := api.NewServer(mon, gate, trail, feed, version)
	adminAPI.Router().Handle("/metrics", promhttp.Handler())
	compressed := requestid.Middleware(compression.NewHandler(cfg.Compress).Handle(adminAPI))

	adminServer := &http.Server{
		Addr:              cfg.Server.AdminListen,
		Handler:           compressed,
		ReadHeaderTimeout: 10 * time.Second,
	}

	h3 := http3.NewServer(cfg.HTTP3)
	if err := h3.Start(guarded); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("hrguard %s on %s (admin on %s)", version, cfg.Server.Listen, cfg.Server.AdminListen)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := adminServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = h3.Stop(ctx)
	_ = adminServer.Shutdown(ctx)
	return server.Shutdown(ctx)
}
