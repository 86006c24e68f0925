package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ductline/ductline/internal/factor"
	"github.com/ductline/ductline/internal/platform/cache"
	"github.com/ductline/ductline/internal/platform/db"
)

func init() {
	factorCmd.AddCommand(factorImportCmd)
	rootCmd.AddCommand(factorCmd)
}

var factorCmd = &cobra.Command{
	Use:   "factor",
	Short: "Manage the cost factor reference table",
}

// factorImporter replaces the reference table.
type factorImporter interface {
	Import(ctx context.Context, points []factor.ReferencePoint) error
}

var factorImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Replace the factor table from a CSV file",
	Long: `Replace the cost factor reference table.

The CSV holds "cost_threshold,factor" rows; a header row is optional.

Examples:
  ductlinectl factor import factors.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ctx := cmd.Context()
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		svc := factor.NewService(factor.NewRepository(pool), factor.NewCache(client, cfg.FactorCacheTTL), logger)
		n, err := importFactors(ctx, svc, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d reference points\n", n)
		return nil
	},
}

func importFactors(ctx context.Context, svc factorImporter, r io.Reader) (int, error) {
	points, err := factor.ParseCSV(r)
	if err != nil {
		return 0, err
	}
	if err := svc.Import(ctx, points); err != nil {
		return 0, err
	}
	return len(points), nil
}
