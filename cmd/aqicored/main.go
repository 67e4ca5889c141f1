/*
Copyright 2023-2024 Thomas Helander

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promlog"
	promlogflag "github.com/prometheus/common/promlog/flag"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
	webflag "github.com/prometheus/exporter-toolkit/web/kingpinflag"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/airwatch-project/airwatch/internal/collector"
	"github.com/airwatch-project/airwatch/internal/config"
	"github.com/airwatch-project/airwatch/internal/history"
	"github.com/airwatch-project/airwatch/internal/metrics"
	"github.com/airwatch-project/airwatch/internal/priority"
	"github.com/airwatch-project/airwatch/internal/scheduler"
	"github.com/airwatch-project/airwatch/internal/sources"
	"github.com/airwatch-project/airwatch/internal/storage"
)

// pollutantDescriptions backs the "pollutants.list" introspection flag.
var pollutantDescriptions = map[string]string{
	"PM25": "Fine particulate matter, 24h EPA rolling average",
	"PM10": "Coarse particulate matter, 24h EPA rolling average",
	"O3":   "Ozone, 8h EPA rolling average",
	"NO2":  "Nitrogen dioxide, 1h EPA average",
	"SO2":  "Sulfur dioxide, 1h EPA average",
	"CO":   "Carbon monoxide, 8h EPA rolling average",
	"HCHO": "Formaldehyde, science-only, no EPA AQI",
}

// sourceDescriptions backs the "sources.list" introspection flag.
var sourceDescriptions = map[string]string{
	"ground_a": "US-biased AQI station network (AirNow-like)",
	"ground_b": "Global aggregator network (WAQI-like)",
	"satellite": "TEMPO-like satellite tile store, NA bounding box only",
	"model":     "GEOS-CF-like chemistry and meteorology model",
	"weather":   "Open-Meteo-like global weather context",
}

var (
	configFile = kingpin.Flag(
		"config.file",
		"Path to configuration file.",
	).Default("config.yaml").String()
	metricsPath = kingpin.Flag(
		"web.telemetry-path",
		"Path under which to expose metrics.",
	).Default("/metrics").String()
	listVariables = kingpin.Flag(
		"introspect.list",
		"List the pollutants or sources this build understands and then exit.",
	).Enum("pollutants", "sources")
	webConfig = webflag.AddFlags(kingpin.CommandLine, ":9813")
	logger    log.Logger
)

func main() {
	promlogConfig := &promlog.Config{}
	promlogflag.AddFlags(kingpin.CommandLine, promlogConfig)
	kingpin.CommandLine.UsageWriter(os.Stdout)
	kingpin.HelpFlag.Short('h')
	kingpin.Version(version.Print("aqicored"))
	kingpin.Parse()

	logger = promlog.New(promlogConfig)
	level.Info(logger).Log("msg", "starting aqicored", "version", version.Info())
	level.Info(logger).Log("msg", "build context", "build_context", version.BuildContext())

	if *listVariables != "" {
		printIntrospection(*listVariables)
		os.Exit(0)
	}

	var cfg config.Config
	if err := cfg.ReloadConfig(logger, *configFile); err != nil {
		level.Error(logger).Log("msg", "failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		level.Error(logger).Log("msg", "failed to ensure schema", "err", err)
		os.Exit(1)
	}

	sched, err := buildScheduler(ctx, &cfg, store)
	if err != nil {
		level.Error(logger).Log("msg", "failed to build scheduler", "err", err)
		os.Exit(1)
	}

	for _, loc := range cfg.ModelLocations() {
		sched.Priority.RegisterSearch(ctx, loc)
	}

	tickInterval, err := time.ParseDuration(cfg.TickInterval)
	if err != nil {
		level.Error(logger).Log("msg", "invalid tick_interval", "err", err)
		os.Exit(1)
	}

	go runTickLoop(ctx, sched, tickInterval)

	registry := prometheus.NewRegistry()
	sched.Metrics.MustRegister(registry)

	landingConfig := web.LandingConfig{
		Name:        "Air Quality Collection Daemon",
		Description: "Prometheus metrics for the multi-source air quality fusion pipeline",
		Version:     version.Info(),
		Links: []web.LandingLinks{
			{Address: *metricsPath, Text: "Metrics"},
		},
	}
	landingPage, err := web.NewLandingPage(landingConfig)
	if err != nil {
		level.Error(logger).Log("err", err)
		os.Exit(1)
	}

	http.Handle(*metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	http.Handle("/", landingPage)

	srv := &http.Server{}
	if err := web.ListenAndServe(srv, webConfig, logger); err != nil {
		level.Error(logger).Log("msg", "HTTP listener stopped", "error", err)
		os.Exit(1)
	}
}

// runTickLoop fires RunTick on cfg.TickInterval. The first tick runs
// immediately rather than waiting a full interval after startup.
func runTickLoop(ctx context.Context, sched *scheduler.Scheduler, interval time.Duration) {
	sched.RunTick(ctx, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for now := range ticker.C {
		sched.RunTick(ctx, now)
	}
}

// buildScheduler wires every package built so far into one Scheduler:
// two collectors (with and without the satellite adapter), the priority
// tracker, the in-memory history store, and the metrics bundle.
func buildScheduler(ctx context.Context, cfg *config.Config, store *storage.Store) (*scheduler.Scheduler, error) {
	groundA := sources.NewGroundStationAAdapter(logger, cfg.GroundAAPIKey)
	groundB := sources.NewGroundStationBAdapter(logger, cfg.GroundBToken)
	atmosModel := sources.NewAtmosphericModelAdapter(logger)
	weather := sources.NewWeatherAdapter(logger)

	worldCollector := collector.New(logger,
		[]sources.Adapter{groundA, groundB, atmosModel},
		[]sources.WeatherAdapter{weather, atmosModel},
	)

	naCollector := worldCollector
	if cfg.Sources.SatelliteBucketURL != "" {
		bucket, err := blob.OpenBucket(ctx, cfg.Sources.SatelliteBucketURL)
		if err != nil {
			return nil, fmt.Errorf("opening satellite bucket: %w", err)
		}
		satellite := sources.NewSatelliteAdapter(logger, bucket, "TEMPO")
		naCollector = collector.New(logger,
			[]sources.Adapter{groundA, groundB, atmosModel, satellite},
			[]sources.WeatherAdapter{weather, atmosModel},
		)
	}

	return &scheduler.Scheduler{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics.New(),
		Priority:       priority.New(),
		History:        history.NewMemoryStore(),
		Storage:        store,
		NACollector:    naCollector,
		WorldCollector: worldCollector,
	}, nil
}

func printIntrospection(kind string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Description"})
	table.SetRowLine(true)
	table.SetColWidth(80)

	var title string
	var items map[string]string
	if kind == "pollutants" {
		title = "Pollutants"
		items = pollutantDescriptions
	} else {
		title = "Sources"
		items = sourceDescriptions
	}

	fmt.Println(title)
	for name, desc := range items {
		table.Append([]string{name, desc})
	}
	table.Render()
}
