package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voidforge/zinstall/internal/config"
	"github.com/voidforge/zinstall/internal/plan"
	"github.com/voidforge/zinstall/internal/report"
	"github.com/voidforge/zinstall/internal/wizard"
)

var (
	applyDryRun  bool
	applyEncrypt bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <plan.yaml>",
	Short: "Provision from a previously saved install plan",
	Long: `Apply re-runs the provisioning pipeline from a declarative plan written
by a previous wizard run. Plans never contain secrets: pass --encrypt to be
prompted for the disk passphrase.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(exitEnv)
		}
		os.Exit(runApply(cfg, args[0], applyDryRun, applyEncrypt))
	},
}

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "print the operations without executing them")
	applyCmd.Flags().BoolVar(&applyEncrypt, "encrypt", false, "prompt for a disk passphrase and encrypt pool members")
}

func runApply(cfg *config.Config, planPath string, dryRun, encrypt bool) int {
	r := report.New(cfg.LogPath)
	defer r.Close()

	installCfg, err := plan.Load(planPath)
	if err != nil {
		r.Error("plan_load_failed", "path", planPath, "error", err)
		return exitEnv
	}

	if encrypt {
		dialog, err := wizard.NewTerminal()
		if err != nil {
			r.Error("terminal_unavailable", "error", err)
			return exitEnv
		}
		pass, err := dialog.Secret("Disk encryption passphrase")
		if err != nil || pass == "" {
			r.Progress("No passphrase entered, aborting.")
			return exitCancelled
		}
		installCfg.DiskPassphrase = pass
	}

	r.Info("apply_start", "plan", planPath, "pool", installCfg.PoolName,
		"topology", string(installCfg.PoolType), "drives", len(installCfg.Drives))

	return runPipeline(r, cfg, installCfg, dryRun)
}
