// Command oasql serves an OpenAPI contract whose operations run MySQL query
// templates.
//
// Run:
//
//	oasql serve --config oasql.yaml
//
// Inspect a deployment without starting it:
//
//	oasql routes          list every operation and whether a query serves it
//	oasql check --ping    validate contract and queries, then ping the database
//
// Every setting can also come from OASQL_* environment variables or a .env
// file; flags win over both.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bjaus/oasql/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// globals holds the flags shared by every subcommand.
type globals struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "oasql",
		Short: "Serve an OpenAPI contract with MySQL query templates",
		Long: `oasql serves the operations of an OpenAPI 3 contract. Each operation is
implemented by a SQL template from the queries file, run against MySQL
through a bounded connection pool.`,
		SilenceUsage: true,
	}

	fs := root.PersistentFlags()
	fs.StringVar(&g.configFile, "config", "", "config file (default: oasql.yaml in the working directory)")
	fs.StringVar(&g.envFile, "env-file", "", "dotenv file (default: .env when present)")
	fs.String("contract-path", "", "OpenAPI contract file")
	fs.String("queries-path", "", "query template file")
	fs.String("db-url", "", "MySQL DSN or mysql:// URL")
	fs.Int("pool-max-size", 0, "maximum open database connections")
	fs.Int("pool-acquire-timeout-ms", 0, "how long a request waits for a connection")
	fs.String("listen-host", "", "listen host")
	fs.Int("listen-port", 0, "listen port")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "text or json")
	fs.Int64("max-body-bytes", 0, "request body limit")
	fs.Float64("rate-limit-rps", 0, "requests per second per client, 0 disables")
	fs.Int("rate-limit-burst", 0, "rate limit burst")
	fs.Int("shutdown-timeout-ms", 0, "graceful shutdown bound")
	fs.StringSlice("cors-origins", nil, "allowed CORS origins, empty disables CORS")

	root.AddCommand(newServeCmd(g), newRoutesCmd(g), newCheckCmd(g))
	return root
}

func (g *globals) load(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{
		File:    g.configFile,
		EnvFile: g.envFile,
		Flags:   cmd.Flags(),
	})
}
