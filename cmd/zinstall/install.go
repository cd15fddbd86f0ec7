package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voidforge/zinstall/internal/catalog"
	"github.com/voidforge/zinstall/internal/config"
	"github.com/voidforge/zinstall/internal/journal"
	"github.com/voidforge/zinstall/internal/pipeline"
	"github.com/voidforge/zinstall/internal/plan"
	"github.com/voidforge/zinstall/internal/report"
	"github.com/voidforge/zinstall/internal/wizard"
)

var installDryRun bool

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Run the interactive installation wizard and provision the pool",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(exitEnv)
		}
		os.Exit(runInstall(cfg, installDryRun))
	},
}

func init() {
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "print the operations without executing them")
}

// checkEnvironment is swapped out by tests.
var checkEnvironment = pipeline.CheckEnvironment

func runInstall(cfg *config.Config, dryRun bool) int {
	r := report.New(cfg.LogPath)
	defer r.Close()

	// Fail on privilege, boot mode or missing tools before the operator has
	// invested anything in the wizard. The pipeline repeats the check once
	// the encryption choice is known.
	if !dryRun {
		if err := checkEnvironment(false); err != nil {
			r.Error("environment_check_failed", "error", err)
			return exitEnv
		}
	}

	// An interrupt during the wizard is operator withdrawal: clean exit, no
	// side effects. Once the pipeline starts, interrupts are ignored and the
	// run goes to completion or reports failure.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-interrupts; ok {
			r.Info("wizard_interrupted")
			os.Exit(exitCancelled)
		}
	}()

	dialog, err := wizard.NewTerminal()
	if err != nil {
		r.Error("terminal_unavailable", "error", err)
		return exitEnv
	}

	scanner := catalog.NewScanner(r)
	devices, err := scanner.Scan()
	if err != nil {
		r.Error("device_scan_failed", "error", err)
		return exitEnv
	}

	w := &wizard.Wizard{
		Devices:         devices,
		Dialog:          dialog,
		Reporter:        r,
		MinDrives:       cfg.MinDrives,
		DefaultPoolName: cfg.DefaultPoolName,
	}

	installCfg, err := w.Run()
	if err != nil {
		if errors.Is(err, wizard.ErrCancelled) {
			r.Progress("Installation cancelled, nothing was changed.")
			return exitCancelled
		}
		r.Error("wizard_failed", "error", err)
		return exitEnv
	}

	if cfg.PlanPath != "" {
		if err := installCfg.Save(cfg.PlanPath); err != nil {
			r.Warn("plan_save_failed", "path", cfg.PlanPath, "error", err)
		} else {
			r.Info("plan_saved", "path", cfg.PlanPath)
		}
	}

	shieldFromInterrupts(interrupts)

	return runPipeline(r, cfg, installCfg, dryRun)
}

// shieldFromInterrupts replaces the wizard's cancel-on-interrupt handling
// with ignoring the signals outright. Merely stopping delivery would restore
// the default disposition and kill the process mid-step.
func shieldFromInterrupts(interrupts chan os.Signal) {
	signal.Ignore(os.Interrupt, syscall.SIGTERM)
	close(interrupts)
}

// runPipeline checks the host environment and executes the provisioning
// sequence. Shared by install and apply.
func runPipeline(r *report.Reporter, cfg *config.Config, installCfg *plan.InstallConfig, dryRun bool) int {
	p := &pipeline.Pipeline{
		Reporter:   r,
		AltRoot:    cfg.AltRoot,
		EFISizeMiB: cfg.EFISizeMiB,
	}

	if dryRun {
		tools := &pipeline.DryRunTools{Reporter: r}
		p.Partitioner, p.Crypt, p.Pool = tools, tools, tools
	} else {
		if err := checkEnvironment(installCfg.Encrypted()); err != nil {
			r.Error("environment_check_failed", "error", err)
			return exitEnv
		}
		p.Partitioner = pipeline.ExecPartitionTool{}
		p.Crypt = pipeline.ExecEncryptionTool{}
		p.Pool = pipeline.ExecPoolTool{}

		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			r.Warn("journal_unavailable", "path", cfg.JournalPath, "error", err)
		} else {
			defer j.Close()
			p.Journal = j
		}
	}

	if err := p.Run(context.Background(), installCfg); err != nil {
		r.Error("install_failed", "error", err)
		return exitCode(err)
	}

	r.Progress("Pool %s is ready under %s.", installCfg.PoolName, cfg.AltRoot)
	return exitOK
}
