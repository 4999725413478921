package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"snaprestore.io/snaprestore-cli/internal/cluster"
	"snaprestore.io/snaprestore-cli/internal/config"
	"snaprestore.io/snaprestore-cli/internal/signing"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap config and keys",
	Long: `Creates the '~/.snaprestore' directory with a 'config.yaml' describing one
cluster and its snapshot repository, plus an Ed25519 keypair for signing
run reports. It prompts for the cluster and repository details.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir, err := config.BaseDir()
		if err != nil {
			return err
		}
		path := configPath
		if path == "" {
			path, err = config.DefaultPath()
			if err != nil {
				return err
			}
		}
		return runInit(bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout(), baseDir, path)
	},
}

func runInit(reader *bufio.Reader, out io.Writer, baseDir, path string) error {
	fmt.Fprintln(out, "Bootstrapping snaprestore...")

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("a config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", filepath.Dir(path), err)
	}

	clusterName, err := promptWithDefault(reader, out, "Cluster name", "production")
	if err != nil {
		return err
	}
	clusterURL, err := promptString(reader, out, "Cluster URL")
	if err != nil {
		return err
	}
	if clusterURL == "" {
		return fmt.Errorf("cluster URL is required")
	}

	clusterCfg := config.Cluster{URL: clusterURL}
	if !cluster.IsLocal(clusterURL) {
		clusterCfg.AccessKeyEnv = "AWS_ACCESS_KEY_ID"
		clusterCfg.SecretKeyEnv = "AWS_SECRET_ACCESS_KEY"
		clusterCfg.SessionTokenEnv = "AWS_SESSION_TOKEN"
	}

	repoName, err := promptWithDefault(reader, out, "Snapshot repository", defaultRepository)
	if err != nil {
		return err
	}
	bucket, err := promptString(reader, out, "S3 bucket backing the repository (optional)")
	if err != nil {
		return err
	}

	var repositories map[string]config.Repository
	if bucket != "" {
		region, err := promptWithDefault(reader, out, "S3 region", "us-east-1")
		if err != nil {
			return err
		}
		prefix, err := promptString(reader, out, "S3 key prefix (optional)")
		if err != nil {
			return err
		}
		repositories = map[string]config.Repository{
			repoName: {S3: &config.S3{
				Bucket:       bucket,
				Region:       region,
				AccessKeyEnv: "AWS_ACCESS_KEY_ID",
				SecretKeyEnv: "AWS_SECRET_ACCESS_KEY",
				Prefix:       prefix,
			}},
		}
	}

	retries, err := promptIntWithDefault(reader, out, "Recovery query retries", config.DefaultMaxQueryRetries)
	if err != nil {
		return err
	}

	pubKey, privKey, err := signing.GenerateSigningKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate signing key pair: %w", err)
	}
	privKeyPath := filepath.Join(baseDir, "keys", "signing.key")

	cfg := config.Config{
		Version:      1,
		Clusters:     map[string]config.Cluster{clusterName: clusterCfg},
		Repositories: repositories,
		Restore: config.Restore{
			MaxQueryRetries: &retries,
		},
		CLI: config.CLI{
			ReportDir: filepath.Join(baseDir, "reports"),
		},
		Signing: config.Signing{
			PrivateKeyPath: privKeyPath,
		},
	}

	yamlData, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	if err := os.WriteFile(path, yamlData, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(out, "✓ Wrote config to %s\n", path)

	if err := signing.WriteKeyPair(privKeyPath, pubKey, privKey); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Wrote signing keys to %s and %s\n", privKeyPath, signing.PublicKeyPath(privKeyPath))
	fmt.Fprintln(out, "\nDone. Review config.yaml and provide credentials via environment variables or an age-encrypted secrets file.")

	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// promptString asks the user for input without a default value.
func promptString(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	input, err := reader.ReadString('\n')
	if err != nil && !(err == io.EOF && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// promptWithDefault asks the user for input, providing a default if input is empty.
func promptWithDefault(reader *bufio.Reader, out io.Writer, label, defaultValue string) (string, error) {
	fmt.Fprintf(out, "%s (%s): ", label, defaultValue)
	input, err := reader.ReadString('\n')
	if err != nil && !(err == io.EOF && input != "") {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

// promptIntWithDefault is a convenience wrapper for integer prompts.
func promptIntWithDefault(reader *bufio.Reader, out io.Writer, label string, defaultValue int) (int, error) {
	valStr, err := promptWithDefault(reader, out, label, strconv.Itoa(defaultValue))
	if err != nil {
		return 0, err
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid number provided: %q", valStr)
	}
	return val, nil
}
