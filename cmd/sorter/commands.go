package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parcel-sorter/internal/app"
	"parcel-sorter/internal/core/config"
	"parcel-sorter/internal/core/logger"
	execdomain "parcel-sorter/internal/features/execution/domain"
	topologyadapters "parcel-sorter/internal/features/topology/adapters"
	topologyservice "parcel-sorter/internal/features/topology/service"
)

func newRootCommand() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:          "sorter",
		Short:        "Wheel-diverter parcel sorting engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory holding the .env file")

	serve := newServeCommand(&configDir)
	// bare "sorter" serves
	root.RunE = serve.RunE

	root.AddCommand(serve, newPathCommand())
	return root
}

func newServeCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sorter and its admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()

			l := logger.Get()
			l.Info("Application starting",
				zap.String("environment", cfg.Environment),
				zap.String("log_level", cfg.LogLevel),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Options{})
			if err != nil {
				l.Error("Startup failed", zap.Error(err))
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					l.Warn("Shutdown incomplete", zap.Error(err))
				}
			}()

			if err := a.Run(ctx); err != nil {
				l.Error("Sorter stopped", zap.Error(err))
				return err
			}
			l.Info("Sorter stopped")
			return nil
		},
	}
}

func newPathCommand() *cobra.Command {
	var (
		topologyFile   string
		exceptionChute int64
	)

	cmd := &cobra.Command{
		Use:   "path <chute-id>",
		Short: "Print the switching path to a chute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chuteID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || chuteID <= 0 {
				return fmt.Errorf("invalid chute id %q", args[0])
			}

			gen, err := topologyservice.NewGenerator(context.Background(), topologyadapters.NewFileSource(topologyFile), nil, exceptionChute, 1)
			if err != nil {
				return err
			}
			path := gen.GeneratePath(chuteID)
			if path == nil {
				return fmt.Errorf("chute %d is not reachable", chuteID)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chute %d (fallback %d), %d segments, budget %s\n",
				path.TargetChuteID, path.FallbackChuteID, len(path.Segments), path.TotalTTL())

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tDIVERTER\tDIRECTION\tANGLE\tCODE\tTTL")
			for _, s := range path.Segments {
				angle, err := execdomain.AngleFor(s.TargetDirection)
				if err != nil {
					return err
				}
				code, err := angle.Encode()
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%02b\t%s\n", s.SequenceNumber, s.DiverterID, s.TargetDirection, angle, code, s.TTL)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&topologyFile, "topology", "topology.yaml", "topology YAML file")
	cmd.Flags().Int64Var(&exceptionChute, "exception-chute", 999, "exception chute id")
	return cmd
}
