package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bjaus/oasql"
	"github.com/bjaus/oasql/config"
	"github.com/bjaus/oasql/contract"
	"github.com/bjaus/oasql/pool"
	"github.com/bjaus/oasql/query"
)

func newCheckCmd(g *globals) *cobra.Command {
	var ping bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration, the contract and the query templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			return check(cmd.Context(), cmd.OutOrStdout(), cfg, ping)
		},
	}
	cmd.Flags().BoolVar(&ping, "ping", false, "also connect to the database")
	return cmd
}

var errCheckFailed = errors.New("check failed")

func check(ctx context.Context, w io.Writer, cfg *config.Config, ping bool) error {
	failed := false
	report := func(what string, err error) {
		if err != nil {
			failed = true
			fmt.Fprintf(w, "%s %s\n%v\n", red("FAIL"), what, err)
			return
		}
		fmt.Fprintf(w, "%s %s\n", green("ok"), what)
	}

	c, err := contract.Load(cfg.ContractPath)
	report("contract "+cfg.ContractPath, err)
	set, qerr := query.LoadFile(cfg.QueriesPath)
	report("queries "+cfg.QueriesPath, qerr)
	if err == nil && qerr == nil {
		report("query bindings", oasql.CheckQueries(c, set))
	}

	if ping {
		report("database", pingDB(ctx, cfg))
	}

	if failed {
		return errCheckFailed
	}
	return nil
}

func pingDB(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout()+5*time.Second)
	defer cancel()

	db, err := query.OpenMySQL(ctx, cfg.DBURL, 1)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	p := pool.New(pool.FromDB(db), pool.Options{MaxSize: 1, AcquireTimeout: cfg.AcquireTimeout()})
	defer func() { _ = p.Close() }()
	return p.Ping(ctx)
}
