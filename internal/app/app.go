package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"edgegrid/internal/alerts"
	"edgegrid/internal/auth"
	"edgegrid/internal/broadcast"
	"edgegrid/internal/collector"
	"edgegrid/internal/config"
	"edgegrid/internal/diagnostics"
	"edgegrid/internal/events"
	"edgegrid/internal/feed"
	"edgegrid/internal/influx"
	"edgegrid/internal/metrics"
	"edgegrid/internal/models"
	"edgegrid/internal/mqttbus"
	"edgegrid/internal/notifier"
	"edgegrid/internal/probe"
	"edgegrid/internal/retention"
	"edgegrid/internal/traffic"
	"edgegrid/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	stores *stores
	bus    *events.Bus

	alerts      *alerts.Registry
	diagnostics *diagnostics.Orchestrator
	nodes       *collector.Service
	retention   *retention.Service
	hub         *web.Hub
	relay       *notifier.Relay
	consumer    *mqttbus.Consumer
	influx      *influx.Recorder

	httpSrv *http.Server
}

// New builds every component. ctx bounds the MQTT connection lifetime.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	st, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: logger, stores: st}

	m := metrics.New()
	a.hub = web.NewHub(logger.With("module", "ws"))
	sinks := []events.Sink{events.Log(st.audit, logger.With("module", "audit")), m, a.hub}

	var mqttClient mqtt.Client
	if cfg.MQTT.Broker != "" {
		c, err := mqttbus.Connect(ctx, mqttbus.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger.With("module", "mqtt"))
		if err != nil {
			_ = st.close()
			return nil, err
		}
		mqttClient = c
		sinks = append(sinks, mqttbus.NewPublisher(c, cfg.MQTT.TopicPrefix, logger.With("module", "mqtt")))
	}

	tg := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if tg.Enabled() {
		a.relay = notifier.NewRelay(tg, logger.With("module", "notifier"))
		sinks = append(sinks, a.relay)
	}

	a.bus = events.NewBus(512, logger.With("module", "events"), sinks...)

	recorders := diagnostics.Recorders{m}
	if cfg.Influx.URL != "" {
		rec, err := influx.New(influx.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, logger.With("module", "influx"))
		if err != nil {
			_ = st.close()
			return nil, err
		}
		a.influx = rec
		recorders = append(recorders, rec)
	}

	a.alerts = alerts.NewRegistry(st.alerts, a.bus, logger.With("module", "alerts"))
	devices := traffic.NewControlPlane(st.devices, a.bus, logger.With("module", "traffic"))
	dispatcher := broadcast.NewDispatcher(st.broadcasts, a.bus, logger.With("module", "broadcast"))

	eval := probe.NewEvaluator(cfg.Diagnostics.Nodes, nil, logger.With("module", "probe"))
	eval.HTTP.Timeout = cfg.Diagnostics.ProbeTimeout
	a.diagnostics = diagnostics.NewOrchestrator(eval, st.runs, logger.With("module", "diagnostics"), diagnostics.Options{
		DurationScale: cfg.Diagnostics.DurationScale,
		EvalTimeout:   cfg.Diagnostics.ProbeTimeout,
		Recorder:      recorders,
		Events:        a.bus,
	})

	a.nodes = collector.NewService(a.diagnostics.Nodes(),
		collector.NewHTTPSource(cfg.Diagnostics.Nodes, cfg.Diagnostics.ProbeTimeout), m, logger.With("module", "collector"))

	a.retention = retention.NewService(st.retention, cfg.Retention.Days, logger.With("module", "retention"))

	if mqttClient != nil {
		f := feed.New(a.alerts, devices, logger.With("module", "feed")).WithNodes(a.nodes)
		a.consumer = mqttbus.NewConsumer(mqttClient, f.Routes(cfg.MQTT.TopicPrefix), logger.With("module", "mqtt"))
	}

	authMgr := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if !authMgr.Enabled() {
		logger.Warn("auth disabled, actor taken from header", "header", auth.OperatorHeader)
	}
	srv := web.NewServer(web.Deps{
		Alerts:      a.alerts,
		Devices:     devices,
		Diagnostics: a.diagnostics,
		Nodes:       a.nodes,
		Broadcasts:  dispatcher,
		Audit:       st.audit,
		Runs:        st.runs,
		Ready:       st.ready,
		Hub:         a.hub,
		Metrics:     m.Handler(),
		Observer:    m,
		Auth:        authMgr.Middleware,
	}, logger.With("module", "web"))
	a.httpSrv = &http.Server{Addr: cfg.HTTP.Addr, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	busCtx, stopBus := context.WithCancel(context.WithoutCancel(ctx))
	go a.bus.Run(busCtx)
	go a.hub.Run(ctx)
	if a.relay != nil {
		go a.relay.Run(ctx)
	}
	go a.retention.Loop(ctx, a.cfg.Retention.Interval)
	if len(a.cfg.Diagnostics.Nodes) > 0 {
		go a.nodes.Loop(ctx, a.cfg.Diagnostics.HealthInterval)
	}

	if a.cfg.SeedDemoAlerts {
		if err := a.seedAlerts(ctx); err != nil {
			a.log.Error("seed demo alerts failed", "err", err)
		}
	}

	errCh := make(chan error, 2)
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx); err != nil {
				errCh <- fmt.Errorf("mqtt consumer: %w", err)
			}
		}()
	}
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.HTTP.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.log.Error("component failed, shutting down", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", "err", err)
	}
	a.diagnostics.Close()
	stopBus()
	select {
	case <-a.bus.Done():
	case <-shutdownCtx.Done():
		a.log.Warn("event bus did not drain before shutdown deadline")
	}
	if a.influx != nil {
		a.influx.Close()
	}
	if err := a.stores.close(); err != nil && runErr == nil {
		runErr = err
	}
	a.log.Info("shutdown complete")
	return runErr
}

// seedAlerts loads the demo feed into an empty registry.
func (a *App) seedAlerts(ctx context.Context) error {
	existing, err := a.alerts.List(ctx, models.AlertFilter{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	demo := models.DemoAlerts(time.Now())
	for _, in := range demo {
		if _, err := a.alerts.Create(ctx, in); err != nil {
			return fmt.Errorf("alert %s: %w", in.ID, err)
		}
	}
	a.log.Info("demo alerts seeded", "count", len(demo))
	return nil
}

// IssueToken signs an operator token with the configured secret.
func IssueToken(cfg config.Config, subject, role string) (string, error) {
	return auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Issue(subject, role)
}
