package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/bjaus/oasql/contract"
	"github.com/bjaus/oasql/query"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
)

func newRoutesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the contract's operations and the queries that serve them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			c, err := contract.Load(cfg.ContractPath)
			if err != nil {
				return err
			}
			set, err := query.LoadFile(cfg.QueriesPath)
			if errors.Is(err, fs.ErrNotExist) {
				set = query.Set{}
			} else if err != nil {
				return err
			}
			return printRoutes(cmd.OutOrStdout(), c, set)
		},
	}
}

func printRoutes(w io.Writer, c *contract.Contract, set query.Set) error {
	ops := c.Operations()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", bold("METHOD"), bold("PATH"), bold("OPERATION"), bold("QUERY"))
	for _, op := range ops {
		status := red("unbound (501)")
		if t, ok := set[op.ID]; ok {
			status = green(string(t.Mode))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cyan(op.Method), c.BasePath+op.Path, op.ID, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	bound := lo.CountBy(ops, func(op *contract.Operation) bool {
		_, ok := set[op.ID]
		return ok
	})
	_, err := fmt.Fprintf(w, "\n%d operations, %d bound, %d unbound\n", len(ops), bound, len(ops)-bound)
	return err
}
