package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/alecgard/tally/internal/api"
	"github.com/alecgard/tally/internal/auth"
	"github.com/alecgard/tally/internal/config"
	"github.com/alecgard/tally/internal/invoice"
	"github.com/alecgard/tally/internal/metrics"
	"github.com/alecgard/tally/internal/rates"
	"github.com/alecgard/tally/internal/team"
	"github.com/alecgard/tally/internal/timesheet"
)

// app holds everything a command needs, wired once per invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tokens    *auth.Store
	client    *api.Client
	overrides *rates.Overrides
	directory *team.Directory
	resolver  *rates.Resolver
	times     *timesheet.Service
	invoices  *invoice.Service
}

func newApp() (*app, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	tok, err := config.LoadToken()
	if err != nil {
		return nil, err
	}
	tokens := auth.NewStore(tok)

	m := metrics.New()

	client := api.New(api.Config{
		Tokens: tokens,
		Credentials: api.Credentials{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
		},
		TokenURL:            cfg.API.TokenURL,
		AuthBaseURL:         cfg.API.AuthBaseURL,
		AccountingBaseURL:   cfg.API.AccountingBaseURL,
		TimetrackingBaseURL: cfg.API.TimetrackingBaseURL,
		Timeout:             cfg.API.Timeout,
		RequestsPerSecond:   cfg.API.RequestsPerSecond,
		Logger:              logger,
		PersistToken:        config.SaveToken,
		PersistAccount:      config.SaveAccountInfo,
	})
	client.SetMetrics(m)
	if info, ok := config.LoadAccountInfo(); ok {
		client.SetAccountInfo(info)
	}

	overrides := rates.NewOverrides()
	ratesPath, err := cfg.RatesFile()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ratesPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("no rate override file", "path", ratesPath)
	case err != nil:
		return nil, fmt.Errorf("reading rate override file: %w", err)
	default:
		overrides = rates.LoadOverrides(data, logger)
	}

	directory := team.NewDirectory(client, logger)
	resolver := rates.NewResolver(directory, overrides, logger)
	resolver.SetMetrics(m)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		tokens:    tokens,
		client:    client,
		overrides: overrides,
		directory: directory,
		resolver:  resolver,
		times:     timesheet.NewService(client, logger),
		invoices:  invoice.NewService(client, logger),
	}, nil
}

// finish runs end-of-command reporting.
func (a *app) finish() {
	if showStats {
		fmt.Fprintln(os.Stderr)
		if err := a.metrics.Dump(os.Stderr); err != nil {
			a.logger.Warn("dumping stats failed", "error", err)
		}
	}
}

// warnDiagnostics surfaces data problems absorbed during the run.
func (a *app) warnDiagnostics() {
	d := a.resolver.Diagnostics()
	if d.SkippedTeamRecords > 0 {
		fmt.Fprintf(os.Stderr, "warning: skipped %d malformed team member record(s)\n", d.SkippedTeamRecords)
	}
	if d.MalformedOverrides > 0 {
		fmt.Fprintf(os.Stderr, "warning: skipped %d malformed rate override value(s)\n", d.MalformedOverrides)
	}
	if d.OverrideConflicts > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d conflicting rate override entr(ies); id-keyed values were used\n", d.OverrideConflicts)
	}
}
