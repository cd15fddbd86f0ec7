package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voidforge/zinstall/internal/pipeline"
	"github.com/voidforge/zinstall/internal/version"
	"github.com/voidforge/zinstall/internal/wizard"
)

// Exit codes. Cancellation is not an error; step failures and environment
// problems carry distinct codes so wrapper scripts can tell them apart.
const (
	exitOK        = 0
	exitCancelled = 1
	exitEnv       = 2
	exitStep      = 3
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "zinstall",
	Short: "Guided ZFS root filesystem installer",
	Long: `zinstall provisions a root filesystem on a redundant, optionally
encrypted ZFS pool: it discovers block devices, walks the operator through
drive selection, topology and sizing, then partitions the drives, sets up
LUKS2 encryption, creates the pool and builds the dataset hierarchy.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the zinstall version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

// exitCode maps an error from the wizard or pipeline to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, wizard.ErrCancelled) {
		return exitCancelled
	}
	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) {
		return exitStep
	}
	return exitEnv
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/zinstall/zinstall.yaml)")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
