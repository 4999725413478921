package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"snaprestore.io/snaprestore-cli/internal/cluster"
	"snaprestore.io/snaprestore-cli/internal/config"
	"snaprestore.io/snaprestore-cli/internal/logger"
	"snaprestore.io/snaprestore-cli/internal/progress"
	"snaprestore.io/snaprestore-cli/internal/report"
	"snaprestore.io/snaprestore-cli/internal/repository"
	"snaprestore.io/snaprestore-cli/internal/restore"
	"snaprestore.io/snaprestore-cli/internal/secrets"
	"snaprestore.io/snaprestore-cli/internal/signing"
)

const (
	defaultIndex      = "content"
	defaultSnapshot   = "my-snapshot"
	defaultRepository = "s3-snapshots"
)

type restoreOptions struct {
	index           string
	snapshot        string
	repository      string
	timeout         time.Duration
	maxQueryRetries int
	noReport        bool
}

var restoreOpts restoreOptions

// sleep is the wait between recovery polls; tests shorten it.
var sleep restore.SleepFunc = restore.Sleep

var restoreCmd = &cobra.Command{
	Use:   "restore <cluster>",
	Short: "Restore an index from a snapshot",
	Long: `Restores a single index from a snapshot into the named cluster.

The command verifies the snapshot repository, asks the cluster to start the
restore, and then follows recovery until every shard restored from the
snapshot is done. Interrupting the command stops observation only: the
cluster keeps restoring.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := runRestore(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], restoreOpts)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Restore failed: %v\n", err)
			return &ExitError{Code: 1, Err: err}
		}
		return nil
	},
}

func runRestore(ctx context.Context, out, errOut io.Writer, clusterName string, opts restoreOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := openSecrets(cfg)
	if err != nil {
		return err
	}

	clusterCfg, err := cfg.Cluster(clusterName)
	if err != nil {
		return err
	}
	client, err := cluster.NewFromConfig(clusterCfg, store.Lookup, logger.Logger)
	if err != nil {
		return fmt.Errorf("cluster %q: %w", clusterName, err)
	}

	retries := cfg.MaxQueryRetries()
	if opts.maxQueryRetries >= 0 {
		retries = opts.maxQueryRetries
	}

	bar := progress.NewBar(out, "Restoring snapshot")
	orchestratorOpts := []restore.Option{
		restore.WithLogger(logger.Logger),
		restore.WithOutput(out),
		restore.WithProgress(bar),
		restore.WithSleep(sleep),
		restore.WithMaxQueryRetries(retries),
	}

	if repo, ok := cfg.Repository(opts.repository); ok && repo.S3 != nil {
		check, err := repository.NewS3Check(repo.S3, store.Lookup)
		if err != nil {
			return fmt.Errorf("repository %q: %w", opts.repository, err)
		}
		logger.Logger.Debug().Str("storage", check.Identifier()).Msg("Checking repository storage before restore")
		orchestratorOpts = append(orchestratorOpts, restore.WithRepositoryCheck(check))
	}

	timeout := opts.timeout
	if timeout == 0 && cfg.Restore.TimeoutMinutes > 0 {
		timeout = time.Duration(cfg.Restore.TimeoutMinutes) * time.Minute
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := restore.Request{
		Cluster:    clusterName,
		Repository: opts.repository,
		Snapshot:   opts.snapshot,
		Index:      opts.index,
	}
	result, runErr := restore.NewOrchestrator(client, orchestratorOpts...).Run(ctx, req)
	bar.Done()

	if !opts.noReport && cfg.CLI.ReportDir != "" {
		path, err := saveReport(cfg, client.URL(), result)
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("Failed to save restore report")
		} else {
			fmt.Fprintf(errOut, "Report saved to %s\n", path)
		}
	}

	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(out, "Restored %q snapshot of %q index to %s cluster\n", req.Snapshot, req.Index, clusterName)
	return nil
}

func openSecrets(cfg *config.Config) (*secrets.Store, error) {
	if cfg.Secrets == nil || cfg.Secrets.File == "" {
		return nil, nil
	}
	store, err := secrets.Open(cfg.Secrets.File, cfg.Secrets.AgeIdentityPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets: %w", err)
	}
	return store, nil
}

func saveReport(cfg *config.Config, clusterURL string, result *restore.Result) (string, error) {
	machineID, err := os.Hostname()
	if err != nil {
		machineID = "unknown"
	}

	rpt := report.NewReportBuilder().
		WithID(uuid.NewString()).
		WithMachineID(machineID).
		WithClusterURL(clusterURL).
		WithResult(result).
		Build()

	if cfg.Signing.PrivateKeyPath != "" {
		privKey, err := signing.LoadPrivateKey(cfg.Signing.PrivateKeyPath)
		if err != nil {
			return "", err
		}
		if err := report.Sign(rpt, privKey); err != nil {
			return "", fmt.Errorf("failed to sign report: %w", err)
		}
	}

	return report.WriteJSON(rpt, cfg.CLI.ReportDir)
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVarP(&restoreOpts.index, "index", "I", defaultIndex, "Index to restore")
	restoreCmd.Flags().StringVarP(&restoreOpts.snapshot, "snapshot", "S", defaultSnapshot, "Snapshot to restore from")
	restoreCmd.Flags().StringVarP(&restoreOpts.repository, "repository", "R", defaultRepository, "Snapshot repository")
	restoreCmd.Flags().DurationVar(&restoreOpts.timeout, "timeout", 0, "Stop observing after this long (0 uses restore.timeout_minutes)")
	restoreCmd.Flags().IntVar(&restoreOpts.maxQueryRetries, "max-query-retries", -1, "Consecutive transient recovery query failures to tolerate (-1 uses config)")
	restoreCmd.Flags().BoolVar(&restoreOpts.noReport, "no-report", false, "Do not write a run report")
}
