package cli

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ivnvaldz7/pokeclient"
	"github.com/ivnvaldz7/pokeclient/internal/config"
	"github.com/ivnvaldz7/pokeclient/internal/logging"
	"github.com/ivnvaldz7/pokeclient/pokeapi"
)

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	client     *pokeclient.Client
	svc        *pokeapi.Service
	metricsReg *prometheus.Registry
	out        io.Writer
	format     string
}

func newApp(f *rootFlags, out io.Writer) (*app, error) {
	cfg, file, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	switch f.output {
	case "", "text", "json", "yaml":
	default:
		return nil, fmt.Errorf("unknown output format %q, want text, json or yaml", f.output)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	if file != "" {
		logger.Debug("config loaded", zap.String("file", file))
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		metricsReg: newMetricsReg(),
		out:        out,
		format:     f.output,
	}

	opts := []pokeclient.Option{
		pokeclient.WithBaseURL(cfg.Client.BaseURL),
		pokeclient.WithMaxConcurrent(cfg.Client.MaxConcurrent),
		pokeclient.WithDefaults(cfg.Client.Policy()),
		pokeclient.WithZapLogger(logger.Named("client")),
		pokeclient.WithMiddleware(pokeclient.UserAgent(cfg.Client.UserAgent)),
	}
	if cfg.Client.Metrics {
		opts = append(opts, pokeclient.WithMetricsCollector(pokeclient.NewMetricsCollectorWithRegistry(a.metricsReg)))
	}
	a.client = pokeclient.New(opts...)
	if !a.client.IsValid() {
		return nil, a.client.ValidationError()
	}

	a.svc = pokeapi.NewService(a.client,
		pokeapi.WithPageTTL(cfg.Client.CacheTTL, cfg.Client.StaleTTL),
		pokeapi.WithServiceLogger(logger.Named("pokeapi")),
	)
	return a, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}
