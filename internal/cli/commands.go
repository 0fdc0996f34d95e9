package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/crmctl/internal/common/apperrors"
	"github.com/tansive/crmctl/internal/common/logtrace"
	"github.com/tansive/crmctl/internal/common/uuid"
)

var (
	// Global flags
	jsonOutput bool
	configFile string
	logLevel   string
)

// ErrAlreadyHandled is returned by commands that already told the user what
// went wrong.
var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)
var warnLabel = color.New(color.FgYellow)

// newRootCmd builds the command tree. Flags are bound to the package globals
// and reset to their defaults on every call.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "crmctl [command] [flags]",
		Short: "crmctl - command line client for the CRM/ERP backend",
		Long: `crmctl manages customers, products, inventory and orders on a CRM/ERP
backend. Sign in once with "crmctl login"; the session is kept next to the
configuration file and reused by every later command.

Examples:
  # Point the client at a server
  crmctl config --server https://crm.example.com

  # Sign in
  crmctl login -u alice

  # List customers matching a keyword
  crmctl customers list --keyword acme

  # Create products from a YAML file
  crmctl products create -f products.yaml

  # Move an order forward
  crmctl orders status 42 shipped`,
		SilenceErrors:     true, // Execute prints the error once
		SilenceUsage:      true,
		PersistentPreRunE: preRunHandlePersistents,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "", "", "Path to configuration file to override default")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDashboardCmd())
	for _, cmd := range newResourceCmds() {
		rootCmd.AddCommand(cmd)
	}
	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure. This is called by
// main.main().
func Execute(ctx context.Context) {
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logErrorDetail(err)
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(os.Stdout, map[string]any{
				"result": 0,
				"error":  err.Error(),
			})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// logErrorDetail logs the full cause chain of an application error at debug
// level; the user only sees the top message.
func logErrorDetail(err error) {
	var appErr apperrors.Error
	if errors.As(err, &appErr) {
		log.Debug().Str("causes", appErr.ErrorAll()).Msg(err.Error())
	}
}

// preRunHandlePersistents applies the global flags before any command runs.
// Every request of one invocation carries the same request ID.
func preRunHandlePersistents(cmd *cobra.Command, args []string) error {
	logtrace.InitLogger(cmd.ErrOrStderr(), logLevel)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logtrace.WithRequestId(ctx, uuid.NewRequestId()))
	if configFile == "" {
		var err error
		configFile, err = GetDefaultConfigPath()
		if err != nil {
			return err
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of crmctl",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]any{
					"result":      1,
					"version":     getCLIVersion(),
					"config_file": configFile,
				})
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "crmctl %s\n", getCLIVersion())
			fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", configFile)
		},
	}
}

// printJSON writes data as indented JSON.
func printJSON(w io.Writer, data any) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON output: %w", err)
	}
	fmt.Fprintln(w, string(jsonData))
	return nil
}

// printResult wraps value in the standard {"result": 1, "value": ...} shape.
func printResult(w io.Writer, value any) error {
	return printJSON(w, map[string]any{
		"result": 1,
		"value":  value,
	})
}

func getCLIVersion() string {
	return "v0.1.0"
}
