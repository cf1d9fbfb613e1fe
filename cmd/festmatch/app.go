package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/festmatch-client/account"
	"github.com/jrsteele09/festmatch-client/apiclient"
	"github.com/jrsteele09/festmatch-client/bootstrap"
	"github.com/jrsteele09/festmatch-client/bridge"
	"github.com/jrsteele09/festmatch-client/internal/config"
	"github.com/jrsteele09/festmatch-client/internal/metrics"
	"github.com/jrsteele09/festmatch-client/sessions"
	"github.com/jrsteele09/festmatch-client/sessions/badgerrepo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

const depsKey = "deps"

// deps is everything a command needs, built once in Before
type deps struct {
	cfg       config.Config
	logger    zerolog.Logger
	repo      *badgerrepo.Repo
	store     *sessions.Store
	client    *apiclient.Client
	accounts  *account.Service
	bootstrap *bootstrap.Bootstrapper
	registry  *prometheus.Registry
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "festmatch",
		Usage:   "festmatch API client",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"FESTMATCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "Backend base URL, overrides api.base_url",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				Usage:   "Debug logging",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Print client counters after the command",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Skip the banner",
			},
		},
		Commands: []*cli.Command{
			statusCommand(),
			refreshCommand(),
			getCommand(),
			postCommand(),
			loginCommand(),
			importTokenCommand(),
			profileCommand(),
			logoutCommand(),
			bridgeCommand(),
		},
		Before: before,
		After:  after,
	}
}

func before(c *cli.Context) error {
	if first := c.Args().First(); first == "" || first == "help" || first == "h" {
		return nil
	}

	opts := []config.Option{}
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	if baseURL := c.String("base-url"); baseURL != "" {
		opts = append(opts, config.WithValue("api.base_url", baseURL))
	}
	cfg, err := config.New(opts...)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.GetLogLevel(), c.Bool("verbose"))
	if !c.Bool("quiet") {
		displayAppname(cfg.GetAppName())
	}

	rt, err := newDeps(cfg, logger)
	if err != nil {
		return err
	}
	c.App.Metadata[depsKey] = rt
	return nil
}

func after(c *cli.Context) error {
	rt, ok := c.App.Metadata[depsKey].(*deps)
	if !ok {
		return nil
	}
	if c.Bool("metrics") {
		printMetrics(rt.registry)
	}
	return rt.repo.Close()
}

func newDeps(cfg config.Config, logger zerolog.Logger) (*deps, error) {
	key, err := badgerrepo.ParseKey(cfg.GetEncryptionKey())
	if err != nil {
		return nil, err
	}
	repoOpts := []badgerrepo.Option{badgerrepo.WithLogger(logger)}
	if key != nil {
		repoOpts = append(repoOpts, badgerrepo.WithEncryptionKey(key))
	}
	repo, err := badgerrepo.Open(cfg.GetStorageDir(), repoOpts...)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	store := sessions.NewStore(repo, sessions.WithLogger(logger))
	client, err := apiclient.NewFromConfig(cfg, store,
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(metrics.New(registry)),
		apiclient.WithUserAgent("festmatch-cli/"+Version),
	)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	accounts, err := account.NewService(client, account.WithLogger(logger))
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	br, err := bridge.NewFromClient(client, cfg.GetBridgePath(), bridge.WithLogger(logger))
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	boot, err := bootstrap.New(client, bootstrap.WithBridge(br), bootstrap.WithLogger(logger))
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	return &deps{
		cfg:       cfg,
		logger:    logger,
		repo:      repo,
		store:     store,
		client:    client,
		accounts:  accounts,
		bootstrap: boot,
		registry:  registry,
	}, nil
}

func getDeps(c *cli.Context) *deps {
	return c.App.Metadata[depsKey].(*deps)
}

func newLogger(level string, verbose bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(os.Stderr, myFigure.String())
}

func printMetrics(reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			fmt.Fprintf(os.Stderr, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
}
