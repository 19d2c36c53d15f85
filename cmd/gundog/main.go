package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gundog/internal/config"
	"gundog/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	identity   string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gundog",
	Short: "gundog - scenario terminal for the Gundogs PMC trainer",
	Long: `gundog runs interactive assessment scenarios against a generative
backend: tactical mission command with the SAM/DAVE/MIKE squad, and
checklist-driven bid audits.

Session state survives restarts; log in with the same identity to resume
where you left off.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Logging.Debug = true
		}
		if err := logging.Initialize(cfg.DataDir, cfg.Logging.Debug, cfg.Logging.Level); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMission(cmd.Context())
	},
}

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Run the tactical mission scenario",
	Long: `Starts (or resumes) the mission scenario: issue orders to the squad,
track the clock and objectives, and extract before time runs out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMission(cmd.Context())
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run the bid audit scenario",
	Long: `Starts (or resumes) the audit scenario: walk the compliance checklist
with the auditor, presenting evidence group by group until every criterion
is satisfied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd.Context())
	},
}

var enlistCmd = &cobra.Command{
	Use:   "enlist",
	Short: "Register a new operator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnlist(cmd.Context())
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Show a password hint or reset a password",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecover(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "gundog.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&identity, "user", "u", "", "operator username (skips the login prompt)")

	rootCmd.AddCommand(missionCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(enlistCmd)
	rootCmd.AddCommand(recoverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
