package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/inventory/internal/aggregate"
	"github.com/yairfalse/inventory/internal/awsclient"
	"github.com/yairfalse/inventory/internal/config"
	"github.com/yairfalse/inventory/internal/daemon"
	"github.com/yairfalse/inventory/internal/emitter"
	"github.com/yairfalse/inventory/internal/fetch"
	"github.com/yairfalse/inventory/internal/region"
	"github.com/yairfalse/inventory/internal/scan"
	"github.com/yairfalse/inventory/internal/telemetry"
	"github.com/yairfalse/inventory/pkg/inventory"
)

// scanFlags holds the scan command line.
type scanFlags struct {
	configPath      string
	accessKeyID     string
	secretAccessKey string
	profile         string
	regions         []string
	outputDir       string
	concurrency     int
	timeout         time.Duration
	interval        time.Duration
	metricsFile     string
	debug           bool
}

var scanOpts scanFlags

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the account and write the inventory artifacts",
	Long: `Scan every enabled region of the account, or the given regions, and
write instances.json, spot_instances.json, reservations.json,
load_balancers.json, v2_load_balancers.json and autoscaling_groups.json.

A resource kind found in no region produces no file. The command exits
non-zero when any region or artifact failed.`,
	Example: `  inventory scan                                  # All enabled regions, ambient credentials
  inventory scan --region us-east-1,eu-west-1     # Selected regions
  inventory scan --accesskeyid AKID --secretaccesskey SECRET
  inventory scan --concurrency 4 --output-dir out
  inventory scan --interval 1h                    # Rescan every hour`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	f := scanCmd.Flags()
	f.StringVarP(&scanOpts.configPath, "config", "c", "", "Config file (TOML, or YAML by extension)")
	f.StringVar(&scanOpts.accessKeyID, "accesskeyid", "", "AWS access key id")
	f.StringVar(&scanOpts.secretAccessKey, "secretaccesskey", "", "AWS secret access key")
	f.StringVar(&scanOpts.profile, "profile", "", "AWS shared config profile")
	f.StringSliceVarP(&scanOpts.regions, "region", "r", nil, "Region to scan, repeatable or comma-separated (default: all enabled)")
	f.StringVarP(&scanOpts.outputDir, "output-dir", "o", "", "Directory for the artifacts")
	f.IntVar(&scanOpts.concurrency, "concurrency", 0, "Regions scanned at once")
	f.DurationVar(&scanOpts.timeout, "timeout", 0, "Time limit per region")
	f.DurationVar(&scanOpts.interval, "interval", 0, "Repeat the scan at this interval until interrupted (default: scan once)")
	f.StringVar(&scanOpts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.BoolVar(&scanOpts.debug, "debug", false, "Enable debug logging")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd, scanOpts)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level, scanOpts.debug)

	return runWithSignals(cmd.Context(), func(ctx context.Context) error {
		return executeScan(ctx, cfg)
	})
}

// buildConfig loads the config file, if any, and applies the flags set on cmd.
func buildConfig(cmd *cobra.Command, flags scanFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("accesskeyid") {
		cfg.AWS.AccessKeyID = flags.accessKeyID
	}
	if changed("secretaccesskey") {
		cfg.AWS.SecretAccessKey = flags.secretAccessKey
	}
	if changed("profile") {
		cfg.AWS.Profile = flags.profile
	}
	if changed("region") {
		cfg.AWS.Regions = flags.regions
	}
	if changed("output-dir") {
		cfg.Output.Dir = flags.outputDir
	}
	if changed("concurrency") {
		cfg.Scanner.Concurrency = flags.concurrency
	}
	if changed("timeout") {
		cfg.Scanner.Timeout = flags.timeout
	}
	if changed("interval") {
		cfg.Scanner.Interval = flags.interval
	}
	if changed("metrics-file") {
		cfg.Metrics.Textfile = flags.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runWithSignals runs fn until it returns or SIGINT/SIGTERM arrives.
func runWithSignals(parent context.Context, fn func(context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return fn(ctx)
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err := g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		log.Warn().Str("signal", sigErr.Signal.String()).Msg("interrupted, no artifacts written")
	}
	return err
}

// executeScan resolves credentials and scans the account, once or on
// cfg.Scanner.Interval.
func executeScan(ctx context.Context, cfg *config.Config) error {
	var home string
	if len(cfg.AWS.Regions) > 0 {
		home = cfg.AWS.Regions[0]
	}

	session, err := awsclient.NewSession(ctx, awsclient.Config{
		Region:          home,
		Profile:         cfg.AWS.Profile,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Endpoint:        cfg.AWS.Endpoint,
	})
	if err != nil {
		return err
	}

	provider, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	scanner, err := newAccountScanner(cfg, session, session.Region(), provider)
	if err != nil {
		return err
	}
	if cfg.Scanner.Interval == 0 {
		return scanner.Run(ctx)
	}
	return runPeriodic(ctx, cfg.Scanner.Interval, provider, scanner.Run)
}

// runPeriodic repeats run every interval until ctx is cancelled.
func runPeriodic(ctx context.Context, interval time.Duration, provider *telemetry.Provider, run daemon.RunFunc) error {
	metrics, err := daemon.NewMetrics(provider.Meter())
	if err != nil {
		return err
	}
	d, err := daemon.NewDaemon(daemon.Config{Interval: interval, Metrics: metrics}, run)
	if err != nil {
		return err
	}
	return d.Start(ctx)
}

// accountScanner runs full inventories of one account. home is the region
// used to list the account's regions.
type accountScanner struct {
	cfg      *config.Config
	source   awsclient.Source
	home     string
	provider *telemetry.Provider
	metrics  *emitter.MetricsEmitter
}

func newAccountScanner(cfg *config.Config, source awsclient.Source, home string, provider *telemetry.Provider) (*accountScanner, error) {
	metrics, err := emitter.NewMetricsEmitter(emitter.WithMeter(provider.Meter()))
	if err != nil {
		return nil, err
	}
	return &accountScanner{
		cfg:      cfg,
		source:   source,
		home:     home,
		provider: provider,
		metrics:  metrics,
	}, nil
}

// Run scans every region and replaces the artifact set.
func (s *accountScanner) Run(ctx context.Context) error {
	cfg := s.cfg
	regions, err := region.NewCatalog(s.source.Clients(s.home).EC2, cfg.AWS.Regions).Regions(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Strs("regions", regions).
		Int("concurrency", cfg.Scanner.Concurrency).
		Str("output_dir", cfg.Output.Dir).
		Msg("inventory starting")

	agg := aggregate.New(cfg.Output.Dir, regions)

	diffs := emitter.NewDiffTracker()
	if err := diffs.LoadBaseline(filepath.Join(agg.Dir(), artifactFile(inventory.KindInstances))); err != nil {
		log.Warn().Err(err).Msg("previous instances artifact ignored")
	}

	emit := emitter.NewMultiEmitter(agg, diffs, s.metrics)
	defer emit.Close()

	runner := scan.NewRunner(s.source, emit,
		scan.WithConcurrency(cfg.Scanner.Concurrency),
		scan.WithRegionTimeout(cfg.Scanner.Timeout),
		scan.WithTracer(s.provider.Tracer()),
		scan.WithFetchOptions(fetch.WithReservationStates(cfg.Scanner.ReservationStates)),
	)

	summary, err := runner.Run(ctx, regions)
	if err != nil {
		if scan.IsCancelled(err) {
			return fmt.Errorf("scan cancelled: %w", err)
		}
		return err
	}

	results, flushErr := agg.Flush(ctx)
	for _, res := range results {
		if res.Written() || res.Err != nil {
			s.metrics.RecordArtifact(ctx, res.Artifact.File, res.Err)
		}
	}

	var textfileErr error
	if cfg.Metrics.Textfile != "" {
		textfileErr = s.provider.WriteTextfile(cfg.Metrics.Textfile)
	}

	return errors.Join(summary.Err(), flushErr, textfileErr)
}

func artifactFile(kind inventory.Kind) string {
	a, _ := aggregate.ArtifactFor(kind)
	return a.File
}
