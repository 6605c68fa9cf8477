package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/site-outages-etl/internal/adapter/api"
	"github.com/couchcryptid/site-outages-etl/internal/adapter/kafka"
	"github.com/couchcryptid/site-outages-etl/internal/config"
	"github.com/couchcryptid/site-outages-etl/internal/domain"
	"github.com/couchcryptid/site-outages-etl/internal/observability"
	"github.com/couchcryptid/site-outages-etl/internal/pipeline"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	exitOK         = 0
	exitAPIError   = 1
	exitOtherError = 2
)

var errConfig = errors.New("invalid configuration")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// execute runs the command line and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, stdout io.Writer) int {
	a := &app{
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	err := root.ExecuteContext(ctx)

	code := exitCode(err)
	switch code {
	case exitOK:
	case exitAPIError:
		if errors.Is(err, api.ErrAPI) {
			a.logger.Error(api.ErrAPI.Error())
			a.logger.Debug("api error detail", "error", err)
		} else {
			a.logger.Error("failed to load config", "error", err)
		}
	default:
		a.logger.Error("outages run failed", "error", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, api.ErrAPI), errors.Is(err, errConfig):
		return exitAPIError
	default:
		return exitOtherError
	}
}

func (a *app) rootCmd() *cobra.Command {
	var siteName, since string

	root := &cobra.Command{
		Use:   "outages",
		Short: "Upload a site's recent outages, tagged with device names",
		Long: `outages fetches every outage from the outages API, keeps those that began
at or after the cutoff, attaches the device name from the site's roster,
and posts the result to the site's outages endpoint. Outages for devices
that are not on the site are dropped.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.loadConfig()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			site := a.site(siteName)
			cutoff := a.cfg.Cutoff
			if since != "" {
				t, err := domain.ParseCutoff(since)
				if err != nil {
					return fmt.Errorf("%w: --since: %w", errConfig, err)
				}
				cutoff = t
			}
			return a.runOutages(cmd.Context(), site, cutoff)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf(
		"outages version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	root.PersistentFlags().StringVar(&siteName, "site-name", "",
		fmt.Sprintf("site to process (default $SITE_NAME or %s)", config.DefaultSiteName))
	root.Flags().StringVar(&since, "since", "",
		"keep outages that began at or after this RFC 3339 instant (default $OUTAGES_CUTOFF or 2022-01-01T00:00:00.000Z)")

	root.AddCommand(a.siteInfoCmd(&siteName))
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(cfg)
	return nil
}

func (a *app) site(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.SiteName
}

func (a *app) runOutages(ctx context.Context, site string, cutoff time.Time) error {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	client := api.NewClient(api.ConfigFrom(a.cfg), a.logger, metrics)

	var publisher pipeline.Publisher
	if a.cfg.KafkaEnabled() {
		writer := kafka.NewWriter(a.cfg, a.logger)
		defer func() {
			if err := writer.Close(); err != nil {
				a.logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		a.logger.Info("kafka mirror enabled", "topic", a.cfg.KafkaTopic)
	}

	p := pipeline.New(client, client, client, publisher, a.logger, metrics)
	report, err := p.Run(ctx, site, cutoff)
	a.pushMetrics(ctx, metrics, site)
	if err != nil {
		return err
	}

	a.logger.Info("run complete",
		"run_id", report.RunID,
		"site", report.Site,
		"uploaded", report.Enriched,
		"dropped", report.Dropped,
		"published", report.Published,
		"duration", report.Duration,
	)
	return nil
}

// pushMetrics delivers the run metrics if a Pushgateway is configured. A
// failed push is logged and does not change the run's outcome.
func (a *app) pushMetrics(ctx context.Context, metrics *observability.Metrics, site string) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := metrics.Push(pushCtx, a.cfg.PushgatewayURL, a.cfg.PushgatewayJob, site); err != nil {
		a.logger.Warn("metrics push failed", "error", err, "gateway", a.cfg.PushgatewayURL)
	}
}
