package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bjaus/oasql"
	"github.com/bjaus/oasql/config"
	"github.com/bjaus/oasql/contract"
	"github.com/bjaus/oasql/pool"
	"github.com/bjaus/oasql/query"
)

func newServeCmd(g *globals) *cobra.Command {
	var statsEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := serve(cmd.Context(), cfg, logger, statsEvery); err != nil {
				logger.Error("server failed", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&statsEvery, "pool-stats-every", time.Minute, "log pool counters at debug level this often, 0 disables")
	return cmd
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// serve loads the contract and the queries, opens the database and runs the
// server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, statsEvery time.Duration) error {
	c, err := contract.Load(cfg.ContractPath)
	if err != nil {
		return err
	}
	set, err := query.LoadFile(cfg.QueriesPath)
	if err != nil {
		return err
	}
	if err := oasql.CheckQueries(c, set); err != nil {
		logger.Warn("query templates do not match the contract", "error", err)
	}

	db, err := query.OpenMySQL(ctx, cfg.DBURL, cfg.PoolMaxSize)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	p := pool.New(pool.FromDB(db), pool.Options{
		MaxSize:        cfg.PoolMaxSize,
		AcquireTimeout: cfg.AcquireTimeout(),
	})
	defer func() { _ = p.Close() }()

	r, err := newRouter(cfg, c, set, p, logger)
	if err != nil {
		return err
	}

	logger.Info("starting server",
		"addr", cfg.Addr(),
		"contract", c.Title,
		"version", c.Version,
		"operations", len(c.Operations()),
		"queries", len(set),
		"pool_max_size", cfg.PoolMaxSize,
	)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return r.ListenAndServe(gctx, cfg.Addr())
	})
	if statsEvery > 0 {
		grp.Go(func() error {
			reportPool(gctx, logger, p, statsEvery)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}

	logger.Info("server stopped")
	return nil
}

// newRouter wires the router: query handlers, the contract and health
// endpoints and the middleware chain.
func newRouter(cfg *config.Config, c *contract.Contract, set query.Set, p *pool.Pool, logger *slog.Logger) (*oasql.Router, error) {
	r := oasql.New(c,
		oasql.WithLogger(logger),
		oasql.WithMaxBodyBytes(cfg.MaxBodyBytes),
		oasql.WithShutdownTimeout(cfg.ShutdownTimeout()),
	)

	if err := r.HandleQueries(query.NewExecutor(p), set); err != nil {
		logger.Warn("query templates skipped", "error", err)
	}
	if err := r.ServeContract("/openapi.json"); err != nil {
		return nil, err
	}
	if err := r.ServeContractYAML("/openapi.yaml"); err != nil {
		return nil, err
	}
	r.ServeHealth("/healthz", p)

	r.Use(
		oasql.RequestID(),
		oasql.Logger(logger),
		oasql.Recovery(logger),
	)
	if cfg.RateLimitRPS > 0 {
		r.Use(oasql.RateLimit(oasql.RateLimitConfig{
			Rate:  cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		}))
	}
	if len(cfg.CORSOrigins) > 0 {
		r.Use(oasql.CORS(oasql.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			Methods:      r.AllowedMethods,
		}))
	}
	return r, nil
}

func reportPool(ctx context.Context, logger *slog.Logger, p *pool.Pool, every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s := p.Stats()
			logger.DebugContext(ctx, "pool",
				"leased", s.Leased,
				"idle", s.Idle,
				"creating", s.Creating,
				"waiting", s.Waiting,
			)
		}
	}
}
