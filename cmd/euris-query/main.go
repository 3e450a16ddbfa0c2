// Command euris-query runs region and single resource queries against the
// EuRIS catalog without starting the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/inlandnav/euris-resources/internal/adapters/catalog"
	"github.com/inlandnav/euris-resources/internal/app"
	"github.com/inlandnav/euris-resources/internal/config"
	"github.com/inlandnav/euris-resources/internal/logging"
	"github.com/inlandnav/euris-resources/internal/ports"
	"github.com/inlandnav/euris-resources/internal/service"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "euris-query",
		Short:         "Query EuRIS resources",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().Duration("timeout", 0, "query timeout (default: EURIS_QUERY_TIMEOUT_SECONDS)")
	rootCmd.PersistentFlags().Bool("verbose", false, "log to stderr")

	rootCmd.AddCommand(newRegionCmd(), newGetCmd())
	return rootCmd
}

// withService builds a service from the environment and runs fn with a
// context bounded by the query timeout.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	logger := logging.Discard()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	if _, ok := os.LookupEnv("EURIS_ENVIRONMENT"); !ok {
		os.Setenv("EURIS_ENVIRONMENT", "development")
	}
	conf, err := config.ConfigFromEnv()
	if err != nil {
		return err
	}

	svc, err := service.New(conf, catalog.NewRetryingHTTPClient(10*time.Second, 3, logger), logger)
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = conf.QueryTimeout()
	}
	ctx, cancel := context.WithTimeout(logging.AddToContext(cmd.Context(), logger), timeout)
	defer cancel()

	return fn(ctx, svc)
}

func write(cmd *cobra.Command, data []byte) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func newRegionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "region",
		Short: "List the resources in a bounding box or around a position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rawBBox, _ := cmd.Flags().GetString("bbox")
			rawPosition, _ := cmd.Flags().GetString("position")
			rawDistance, _ := cmd.Flags().GetString("distance")
			rawMode, _ := cmd.Flags().GetString("mode")

			mode, err := app.ParseMode(rawMode)
			if err != nil {
				return err
			}

			var run func(ctx context.Context, aggregator *app.Aggregator) (app.RegionResult, error)
			switch {
			case rawBBox != "" && rawPosition != "":
				return errors.New("--bbox and --position are mutually exclusive")
			case rawBBox != "":
				bbox, err := ports.ParseBBox(rawBBox)
				if err != nil {
					return err
				}
				run = func(ctx context.Context, aggregator *app.Aggregator) (app.RegionResult, error) {
					return aggregator.QueryRegion(ctx, bbox, mode)
				}
			case rawPosition != "":
				point, distance, err := ports.ParsePosition(rawPosition, rawDistance)
				if err != nil {
					return err
				}
				run = func(ctx context.Context, aggregator *app.Aggregator) (app.RegionResult, error) {
					return aggregator.QueryRadius(ctx, point, distance, mode)
				}
			default:
				return errors.New("one of --bbox or --position is required")
			}

			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				result, err := run(ctx, svc.Aggregator)
				if err != nil {
					return err
				}
				if result.Partial() {
					fmt.Fprintln(cmd.ErrOrStderr(), "partial result:", result.Failures)
				}
				data, err := ports.ResourcesToResponseData(result.Resources, result.Partial())
				if err != nil {
					return err
				}
				return write(cmd, data)
			})
		},
	}
	cmd.Flags().String("bbox", "", "minLon,minLat,maxLon,maxLat")
	cmd.Flags().String("position", "", "lon,lat")
	cmd.Flags().String("distance", "1000", "radius around --position in metres")
	cmd.Flags().String("mode", "summary", "summary or note")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind@id>",
		Short: "Show the note of a single resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *service.Service) error {
				note, err := svc.Aggregator.QueryOne(ctx, args[0])
				if err != nil {
					return err
				}
				data, err := ports.NoteToResponseData(note)
				if err != nil {
					return err
				}
				return write(cmd, data)
			})
		},
	}
}
