// Package pipeline materializes an install configuration into partitions,
// encrypted volumes, a pool and its dataset tree. Steps run strictly in order;
// each probes its postcondition first and skips as a no-op when it already
// holds, so an interrupted run is resumed by re-running the pipeline. There is
// no rollback: a failed step stops the run and reports exactly what was
// attempted.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/voidforge/zinstall/internal/journal"
	"github.com/voidforge/zinstall/internal/plan"
	"github.com/voidforge/zinstall/internal/report"
	"github.com/voidforge/zinstall/internal/topology"
)

// Step names, in execution order.
const (
	StepPartition  = "partition"
	StepEncrypt    = "encrypt"
	StepPoolCreate = "pool-create"
	StepDatasets   = "dataset-create"
	StepProperties = "property-apply"
)

// StepError identifies the failed step, the operation attempted and the
// underlying cause, enough for an operator to resume manually.
type StepError struct {
	Step string
	Op   string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %s: %v", e.Step, e.Op, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// EnvError is a fatal host-environment precondition failure: wrong privilege,
// wrong boot mode, missing tools. Not recoverable by re-prompting.
type EnvError struct {
	Reason string
}

func (e *EnvError) Error() string {
	return "environment precondition failed: " + e.Reason
}

// CheckEnvironment verifies the host can run a destructive install: root
// privilege, EFI boot mode, and the external tools every step shells out to.
func CheckEnvironment(encrypted bool) error {
	if os.Geteuid() != 0 {
		return &EnvError{Reason: "must run as root"}
	}
	if _, err := os.Stat("/sys/firmware/efi"); err != nil {
		return &EnvError{Reason: "host is not booted in EFI mode"}
	}
	tools := []string{"sgdisk", "zpool", "zfs"}
	if encrypted {
		tools = append(tools, "cryptsetup")
	}
	for _, t := range tools {
		if _, err := exec.LookPath(t); err != nil {
			return &EnvError{Reason: "required tool not found: " + t}
		}
	}
	return nil
}

// Pipeline executes the provisioning sequence with the given tools.
type Pipeline struct {
	Partitioner PartitionTool
	Crypt       EncryptionTool
	Pool        PoolTool
	Reporter    *report.Reporter
	Journal     *journal.Journal // optional

	AltRoot    string
	EFISizeMiB int
}

// Run executes the ordered steps for the given configuration. The
// configuration is re-validated first, independent of what the wizard did.
func (p *Pipeline) Run(ctx context.Context, cfg *plan.InstallConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to execute invalid configuration: %w", err)
	}

	runID := p.startRun(cfg)

	steps := []struct {
		name string
		run  func(context.Context, *plan.InstallConfig) (bool, error)
	}{
		{StepPartition, p.stepPartition},
		{StepEncrypt, p.stepEncrypt},
		{StepPoolCreate, p.stepPoolCreate},
		{StepDatasets, p.stepDatasets},
		{StepProperties, p.stepProperties},
	}

	for _, s := range steps {
		p.Reporter.Info("step_start", "step", s.name, "run", runID)

		skipped, err := s.run(ctx, cfg)
		if err != nil {
			serr := &StepError{Step: s.name, Op: "execute", Err: err}
			if inner, ok := err.(*StepError); ok {
				serr = inner
			}
			p.Reporter.Error("step_failed", "step", serr.Step, "op", serr.Op, "error", serr.Err)
			p.recordStep(runID, serr.Step, journal.StepFailed, serr.Error())
			p.finishRun(runID, journal.RunFailed)
			return serr
		}

		if skipped {
			p.Reporter.Info("step_skipped", "step", s.name, "reason", "postcondition already satisfied")
			p.recordStep(runID, s.name, journal.StepSkipped, "")
		} else {
			p.Reporter.Info("step_done", "step", s.name)
			p.recordStep(runID, s.name, journal.StepOK, "")
		}
	}

	p.finishRun(runID, journal.RunComplete)
	p.Reporter.Info("install_complete", "pool", cfg.PoolName, "run", runID)
	return nil
}

// stepPartition wipes and partitions every selected device: a fixed-size EFI
// system partition and a pool-member partition spanning the remainder. A
// device already carrying exactly that layout is left untouched.
func (p *Pipeline) stepPartition(ctx context.Context, cfg *plan.InstallConfig) (bool, error) {
	allSkipped := true
	for _, id := range cfg.Drives {
		node := deviceNode(id)

		layout, err := p.Partitioner.Layout(ctx, node)
		if err != nil {
			return false, &StepError{Step: StepPartition, Op: "inspect " + node, Err: err}
		}
		if layout.Satisfied() {
			p.Reporter.Info("partition_kept", "device", node)
			continue
		}

		allSkipped = false
		p.Reporter.Progress("Partitioning %s", node)
		if err := p.Partitioner.Partition(ctx, node, p.EFISizeMiB); err != nil {
			return false, &StepError{Step: StepPartition, Op: "partition " + node, Err: err}
		}
	}
	return allSkipped, nil
}

// stepEncrypt initializes and opens block encryption on every pool-member
// partition. Runs only when the configuration carries a passphrase.
func (p *Pipeline) stepEncrypt(ctx context.Context, cfg *plan.InstallConfig) (bool, error) {
	if !cfg.Encrypted() {
		return true, nil
	}

	allSkipped := true
	for _, id := range cfg.Drives {
		member := partitionPath(deviceNode(id), 2)
		name := mappingName(id)

		formatted, err := p.Crypt.IsFormatted(ctx, member)
		if err != nil {
			return false, &StepError{Step: StepEncrypt, Op: "inspect " + member, Err: err}
		}
		if !formatted {
			allSkipped = false
			p.Reporter.Progress("Encrypting %s", member)
			if err := p.Crypt.Format(ctx, member, cfg.DiskPassphrase); err != nil {
				return false, &StepError{Step: StepEncrypt, Op: "format " + member, Err: err}
			}
		}

		if !p.Crypt.MappingExists(name) {
			allSkipped = false
			if err := p.Crypt.Open(ctx, member, name, cfg.DiskPassphrase); err != nil {
				return false, &StepError{Step: StepEncrypt, Op: "open " + member, Err: err}
			}
		}
	}
	return allSkipped, nil
}

// poolTargets returns the per-device paths the pool is built over: decrypted
// mapping targets when encryption is enabled, raw member partitions otherwise.
func (p *Pipeline) poolTargets(cfg *plan.InstallConfig) []string {
	targets := make([]string, 0, len(cfg.Drives))
	for _, id := range cfg.Drives {
		if cfg.Encrypted() {
			targets = append(targets, "/dev/mapper/"+mappingName(id))
		} else {
			targets = append(targets, partitionPath(deviceNode(id), 2))
		}
	}
	return targets
}

func (p *Pipeline) stepPoolCreate(ctx context.Context, cfg *plan.InstallConfig) (bool, error) {
	exists, err := p.Pool.PoolExists(ctx, cfg.PoolName)
	if err != nil {
		return false, &StepError{Step: StepPoolCreate, Op: "inspect pool " + cfg.PoolName, Err: err}
	}
	if exists {
		return true, nil
	}

	var vdev string
	switch cfg.PoolType {
	case topology.Mirror:
		vdev = "mirror"
	case topology.RaidZ:
		vdev = "raidz"
	}

	poolOpts, fsOpts := poolCreationOpts()
	spec := PoolSpec{
		Name:     cfg.PoolName,
		AltRoot:  p.AltRoot,
		Vdev:     vdev,
		Targets:  p.poolTargets(cfg),
		PoolOpts: poolOpts,
		FSOpts:   fsOpts,
	}

	p.Reporter.Progress("Creating pool %s (%s) over %d devices", cfg.PoolName, cfg.PoolType, len(spec.Targets))
	if err := p.Pool.Create(ctx, spec); err != nil {
		return false, &StepError{Step: StepPoolCreate, Op: "create pool " + cfg.PoolName, Err: err}
	}
	return false, nil
}

func (p *Pipeline) stepDatasets(ctx context.Context, cfg *plan.InstallConfig) (bool, error) {
	allSkipped := true
	for _, ds := range datasetTree(cfg.RootGiB, cfg.HomeGiB) {
		full := cfg.PoolName + "/" + ds.Name

		exists, err := p.Pool.DatasetExists(ctx, full)
		if err != nil {
			return false, &StepError{Step: StepDatasets, Op: "inspect " + full, Err: err}
		}
		if exists {
			continue
		}

		allSkipped = false
		if err := p.Pool.CreateDataset(ctx, full, ds.Props); err != nil {
			return false, &StepError{Step: StepDatasets, Op: "create " + full, Err: err}
		}
	}

	if cfg.SwapGiB > 0 {
		swap := cfg.PoolName + "/swap"
		exists, err := p.Pool.DatasetExists(ctx, swap)
		if err != nil {
			return false, &StepError{Step: StepDatasets, Op: "inspect " + swap, Err: err}
		}
		if !exists {
			allSkipped = false
			props := map[string]string{
				"compression":    "zle",
				"sync":           "always",
				"logbias":        "throughput",
				"primarycache":   "metadata",
				"secondarycache": "none",
			}
			if err := p.Pool.CreateVolume(ctx, swap, cfg.SwapGiB, props); err != nil {
				return false, &StepError{Step: StepDatasets, Op: "create volume " + swap, Err: err}
			}
		}
	}

	return allSkipped, nil
}

func (p *Pipeline) stepProperties(ctx context.Context, cfg *plan.InstallConfig) (bool, error) {
	props := [][2]string{
		{"compression", "lz4"},
		{"atime", "off"},
	}
	allSkipped := true
	for _, kv := range props {
		current, err := p.Pool.GetProperty(ctx, cfg.PoolName, kv[0])
		if err != nil {
			return false, &StepError{Step: StepProperties, Op: "get " + kv[0] + " on " + cfg.PoolName, Err: err}
		}
		if current == kv[1] {
			continue
		}

		allSkipped = false
		if err := p.Pool.SetProperty(ctx, cfg.PoolName, kv[0], kv[1]); err != nil {
			return false, &StepError{Step: StepProperties, Op: "set " + kv[0] + " on " + cfg.PoolName, Err: err}
		}
	}
	return allSkipped, nil
}

// Journal helpers. The journal is best effort like the log: a write failure is
// reported but never stops a run.

func (p *Pipeline) startRun(cfg *plan.InstallConfig) string {
	if p.Journal == nil {
		return ""
	}
	id, err := p.Journal.StartRun(cfg.PoolName, string(cfg.PoolType), cfg.Drives)
	if err != nil {
		p.Reporter.Warn("journal_write_failed", "error", err)
		return ""
	}
	return id
}

func (p *Pipeline) recordStep(runID, step, status, detail string) {
	if p.Journal == nil || runID == "" {
		return
	}
	if err := p.Journal.RecordStep(runID, step, status, detail); err != nil {
		p.Reporter.Warn("journal_write_failed", "error", err)
	}
}

func (p *Pipeline) finishRun(runID, status string) {
	if p.Journal == nil || runID == "" {
		return
	}
	if err := p.Journal.FinishRun(runID, status); err != nil {
		p.Reporter.Warn("journal_write_failed", "error", err)
	}
}
