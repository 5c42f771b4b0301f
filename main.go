package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"showdown-strategist/client"
	"showdown-strategist/config"
	"showdown-strategist/data"
	"showdown-strategist/logging"
	"showdown-strategist/recorder"
	"showdown-strategist/session"
	"showdown-strategist/strategy"
)

const maxReconnects = 3

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	log := logger.WithField("user", cfg.Username)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dex, err := data.Load(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("loading pokemon data: %w", err)
	}

	strat, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		return err
	}
	registry := strategy.NewRegistry(log)
	if err := registry.RegisterAll(strat.Evaluators); err != nil {
		return err
	}
	log.WithField("evaluators", registry.Names()).Info("strategy loaded")

	sink, closers, err := openSinks(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.WithError(err).Warn("closing turn log")
			}
		}
	}()
	rec := recorder.New(sink, cfg.Username, log)

	engine := strategy.NewEngine(registry,
		strategy.WithOptions(strat.Options()),
		strategy.WithRecorder(rec),
		strategy.WithLogger(log),
	)

	sc, err := dial(ctx, cfg.ServerURL, log)
	if err != nil {
		return err
	}

	login := client.Login{URL: cfg.LoginURL, Username: cfg.Username, Password: cfg.Password}
	sess := session.New(sc, login, engine, dex, rec, session.Options{
		Username:      cfg.Username,
		Format:        cfg.Format,
		Mode:          cfg.Mode,
		Opponent:      cfg.Opponent,
		Battles:       cfg.Battles,
		MaxConcurrent: cfg.MaxConcurrent,
	}, log)

	log.WithFields(logrus.Fields{
		"mode":    cfg.Mode,
		"format":  cfg.Format,
		"battles": cfg.Battles,
	}).Info("starting")
	return sess.Run(ctx)
}

func dial(ctx context.Context, serverURL string, log logrus.FieldLogger) (*client.ShowdownClient, error) {
	var lastErr error
	for attempt := 1; attempt <= maxReconnects; attempt++ {
		sc, err := client.Dial(ctx, serverURL, log)
		if err == nil {
			return sc, nil
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("connection failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxReconnects, lastErr)
}

func openSinks(cfg *config.Config) (recorder.Sink, []io.Closer, error) {
	var sinks recorder.MultiSink
	var closers []io.Closer
	if cfg.CSVEnabled() {
		csvSink, err := recorder.NewCSVSink(cfg.CSVPath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, csvSink)
		closers = append(closers, csvSink)
	}
	if cfg.SQLitePath != "" {
		dbSink, err := recorder.NewSQLiteSink(cfg.SQLitePath)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, nil, err
		}
		sinks = append(sinks, dbSink)
		closers = append(closers, dbSink)
	}
	switch len(sinks) {
	case 0:
		return nil, nil, nil
	case 1:
		return sinks[0], closers, nil
	}
	return sinks, closers, nil
}
