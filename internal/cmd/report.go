package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"snaprestore.io/snaprestore-cli/internal/config"
	"snaprestore.io/snaprestore-cli/internal/report"
	"snaprestore.io/snaprestore-cli/internal/signing"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage restore reports",
	Long:  `List, view, and verify the signed reports written by restore runs.`,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all restore reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return listReports(cmd.OutOrStdout(), cfg.CLI.ReportDir)
	},
}

func listReports(out io.Writer, dir string) error {
	reports, err := report.ListReports(dir)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	if len(reports) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-20s  %-16s  %-24s  %s\n", "ID", "Timestamp", "Cluster", "Index", "Status")
	fmt.Fprintln(out, strings.Repeat("-", 110))

	for _, r := range reports {
		status := "✓ Success"
		if !r.Success {
			status = "✗ Failed"
		}
		fmt.Fprintf(out, "%-36s  %-20s  %-16s  %-24s  %s\n",
			r.ID,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Cluster,
			r.Index,
			status,
		)
	}
	return nil
}

var reportShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Display a restore report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		rpt, path, err := findReport(cfg.CLI.ReportDir, args[0])
		if err != nil {
			return err
		}

		showJSON, _ := cmd.Flags().GetBool("json")
		if showJSON {
			data, err := json.MarshalIndent(rpt, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		printReport(cmd.OutOrStdout(), rpt, path)
		return nil
	},
}

func printReport(out io.Writer, rpt *report.Report, path string) {
	fmt.Fprintf(out, "Report: %s\n", rpt.ID)
	fmt.Fprintf(out, "Path: %s\n", path)
	fmt.Fprintf(out, "Timestamp: %s\n", rpt.Timestamp.Format("2006-01-02 15:04:05 UTC"))
	if rpt.MachineID != "" {
		fmt.Fprintf(out, "Machine: %s\n", rpt.MachineID)
	}
	fmt.Fprintln(out)

	if rpt.Cluster.URL != "" {
		fmt.Fprintf(out, "Cluster: %s (%s)\n", rpt.Cluster.Name, rpt.Cluster.URL)
	} else {
		fmt.Fprintf(out, "Cluster: %s\n", rpt.Cluster.Name)
	}
	fmt.Fprintf(out, "Repository: %s\n", rpt.Repository)
	fmt.Fprintf(out, "Snapshot: %s\n", rpt.Snapshot)
	fmt.Fprintf(out, "Index: %s\n", rpt.Index)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Summary:")
	if rpt.Summary.Success {
		fmt.Fprintln(out, "  Status: ✓ Success")
	} else {
		fmt.Fprintf(out, "  Status: ✗ Failed (%s)\n", rpt.State)
	}
	if rpt.Failure != nil {
		fmt.Fprintf(out, "  Failure: [%s] %s\n", rpt.Failure.Kind, rpt.Failure.Message)
	}
	if rpt.Progress.FilesTotal > 0 {
		fmt.Fprintf(out, "  Files: %d/%d (%.0f%%)\n", rpt.Progress.FilesRecovered, rpt.Progress.FilesTotal, rpt.Summary.PercentRestored)
	}
	fmt.Fprintf(out, "  Polls: %d\n", rpt.Polls)
	if rpt.Summary.RestoreDuration != "" {
		fmt.Fprintf(out, "  Restore Duration: %s\n", rpt.Summary.RestoreDuration)
	}
	fmt.Fprintln(out)

	if len(rpt.Transitions) > 0 {
		fmt.Fprintln(out, "Transitions:")
		for _, t := range rpt.Transitions {
			fmt.Fprintf(out, "  %s  %s -> %s\n", t.At.Format("15:04:05"), t.From, t.To)
		}
		fmt.Fprintln(out)
	}

	if rpt.Signature != "" {
		fmt.Fprintf(out, "Signature: %s...\n", rpt.Signature[:min(32, len(rpt.Signature))])
	} else {
		fmt.Fprintln(out, "Signature: (not signed)")
	}
}

var reportVerifyCmd = &cobra.Command{
	Use:          "verify <id>",
	Short:        "Verify a report's signature",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Signing.PrivateKeyPath == "" {
			return fmt.Errorf("no signing key configured")
		}

		rpt, _, err := findReport(cfg.CLI.ReportDir, args[0])
		if err != nil {
			return err
		}

		pubKey, err := signing.LoadPublicKey(signing.PublicKeyPath(cfg.Signing.PrivateKeyPath))
		if err != nil {
			return fmt.Errorf("failed to load public key: %w", err)
		}

		valid, err := report.Verify(rpt, pubKey)
		if err != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}

		if !valid {
			fmt.Fprintln(cmd.OutOrStdout(), "✗ Signature is INVALID")
			return &ExitError{Code: 1, Err: fmt.Errorf("invalid signature on report %s", rpt.ID)}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Signature is valid")
		return nil
	},
}

func findReport(dir string, id string) (*report.Report, string, error) {
	reports, err := report.ListReports(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list reports: %w", err)
	}

	// Try exact match first
	for _, r := range reports {
		if r.ID == id {
			rpt, err := report.LoadReport(r.Path)
			return rpt, r.Path, err
		}
	}

	var matches []*report.ReportSummary
	for _, r := range reports {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}

	if len(matches) == 0 {
		// Try filename match
		pattern := filepath.Join(dir, "*"+id+"*.json")
		files, _ := filepath.Glob(pattern)
		if len(files) == 1 {
			rpt, err := report.LoadReport(files[0])
			return rpt, files[0], err
		}
		return nil, "", fmt.Errorf("report not found: %s", id)
	}

	if len(matches) > 1 {
		return nil, "", fmt.Errorf("ambiguous report ID %q matches %d reports", id, len(matches))
	}

	rpt, err := report.LoadReport(matches[0].Path)
	return rpt, matches[0].Path, err
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportVerifyCmd)

	reportShowCmd.Flags().Bool("json", false, "Output report as JSON")
}
