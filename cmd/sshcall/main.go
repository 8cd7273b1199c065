// Package main is the entrypoint for the sshcall CLI, an illustrative
// command-line surface over the sshsession library.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sessionkit/sshsession"
)

var (
	version = "dev"
	commit  = "none"
)

// Global flags
var (
	configPath string
	flagHost   string
	flagPort   int
	flagUser   string
	flagPass   string
	flagKey    string
	insecure   bool
	debug      bool
	timeout    time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sshcall",
	Short: "sshcall - run commands and move files over a managed SSH session",
	Long: `sshcall opens one SSH session to a remote host and runs a command or
transfers a file over it. Connection parameters come from flags or from a
YAML host file.

Examples:
  sshcall run "ls -al" --host example.com --user deploy --password secret
  sshcall put local.txt /tmp/remote.txt --config host.yaml
  sshcall get /var/log/syslog syslog.txt --config host.yaml
  sshcall push ./site /var/www/site --config host.yaml --exclude '*.tmp'`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML host file")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "Remote host")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "Remote SSH port (default 22)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "SSH username")
	rootCmd.PersistentFlags().StringVar(&flagPass, "password", "", "SSH password")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "Path to SSH private key")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip host key verification")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 0, "Per-command timeout (run only)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(pushCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Run a command on the remote host and print its stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := sessionConfig(cmd)
		if err != nil {
			return err
		}

		sess, err := sshsession.Open(config)
		if err != nil {
			return err
		}
		defer sess.Close()

		out, err := sess.RunWithTimeout(args[0], timeout)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <local> <remote>",
	Short: "Upload a local file to the remote host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := sessionConfig(cmd)
		if err != nil {
			return err
		}

		sess, err := sshsession.Open(config)
		if err != nil {
			return err
		}
		defer sess.Close()

		return sess.Upload(context.Background(), args[0], args[1])
	},
}

var getCmd = &cobra.Command{
	Use:   "get <remote> <local>",
	Short: "Download a remote file to the local host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := sessionConfig(cmd)
		if err != nil {
			return err
		}

		sess, err := sshsession.Open(config)
		if err != nil {
			return err
		}
		defer sess.Close()

		return sess.Download(context.Background(), args[0], args[1])
	},
}

// Push-specific flags
var (
	excludePatterns []string
	parallelism     int
	dryRun          bool
)

var pushCmd = &cobra.Command{
	Use:   "push <local-dir> <remote-dir>",
	Short: "Push a directory tree to the remote host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := sessionConfig(cmd)
		if err != nil {
			return err
		}

		mirror, err := sshsession.NewMirror(config)
		if err != nil {
			return err
		}
		defer mirror.Close()

		result, err := mirror.Push(context.Background(), args[0], args[1], &sshsession.MirrorOptions{
			ExcludePatterns: excludePatterns,
			Parallelism:     parallelism,
			DryRun:          dryRun,
		})
		if err != nil {
			return err
		}

		for _, f := range result.Files {
			status := "pushed"
			switch {
			case dryRun:
				status = "would push"
			case f.Error != nil:
				status = "failed: " + f.Error.Error()
			case f.Skipped:
				status = "unchanged"
			}
			fmt.Printf("%s -> %s  %s\n", f.LocalPath, f.RemotePath, status)
		}
		fmt.Printf("%d pushed, %d unchanged, %d errors, %d bytes\n",
			result.Pushed, result.Skipped, result.Errors, result.TotalSize)

		if result.Errors > 0 {
			return fmt.Errorf("%d files failed", result.Errors)
		}
		return nil
	},
}

func init() {
	pushCmd.Flags().StringSliceVarP(&excludePatterns, "exclude", "e", nil, "Glob patterns to exclude")
	pushCmd.Flags().IntVarP(&parallelism, "parallel", "p", 4, "Number of concurrent sessions")
	pushCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Report what would be pushed without transferring")
}

// sessionConfig assembles the session configuration from the host file, if
// any, with explicit flags taking precedence.
func sessionConfig(cmd *cobra.Command) (sshsession.Config, error) {
	var config sshsession.Config

	if configPath != "" {
		loaded, err := loadHostFile(configPath)
		if err != nil {
			return sshsession.Config{}, err
		}
		config = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		config.Host = flagHost
	}
	if flags.Changed("port") {
		config.Port = flagPort
	}
	if flags.Changed("user") {
		config.User = flagUser
	}
	if flags.Changed("password") {
		config.Password = flagPass
	}
	if flags.Changed("key") {
		config.KeyPath = flagKey
	}
	if flags.Changed("insecure") {
		config.InsecureIgnoreHostKey = insecure
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	config.Logger = logger

	return config, nil
}
