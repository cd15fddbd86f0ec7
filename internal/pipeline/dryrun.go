package pipeline

import (
	"context"
	"strings"

	"github.com/voidforge/zinstall/internal/report"
)

// DryRunTools implements all three capability interfaces without touching the
// host: every destructive operation is reported instead of executed, and every
// postcondition probe answers "not yet satisfied" so the full operation list
// prints.
type DryRunTools struct {
	Reporter *report.Reporter
}

func (d *DryRunTools) Layout(ctx context.Context, device string) (PartitionLayout, error) {
	return PartitionLayout{}, nil
}

func (d *DryRunTools) Partition(ctx context.Context, device string, efiSizeMiB int) error {
	d.Reporter.Progress("dry-run: would wipe %s and create %dMiB EFI + pool-member partitions", device, efiSizeMiB)
	return nil
}

func (d *DryRunTools) IsFormatted(ctx context.Context, device string) (bool, error) {
	return false, nil
}

func (d *DryRunTools) Format(ctx context.Context, device, passphrase string) error {
	d.Reporter.Progress("dry-run: would initialize LUKS2 on %s", device)
	return nil
}

func (d *DryRunTools) Open(ctx context.Context, device, name, passphrase string) error {
	d.Reporter.Progress("dry-run: would open %s as /dev/mapper/%s", device, name)
	return nil
}

func (d *DryRunTools) MappingExists(name string) bool {
	return false
}

func (d *DryRunTools) PoolExists(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (d *DryRunTools) Create(ctx context.Context, spec PoolSpec) error {
	d.Reporter.Progress("dry-run: would create pool %s over %s", spec.Name, strings.Join(spec.Targets, " "))
	return nil
}

func (d *DryRunTools) DatasetExists(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (d *DryRunTools) CreateDataset(ctx context.Context, name string, props map[string]string) error {
	d.Reporter.Progress("dry-run: would create dataset %s", name)
	return nil
}

func (d *DryRunTools) CreateVolume(ctx context.Context, name string, sizeGiB int, props map[string]string) error {
	d.Reporter.Progress("dry-run: would create %dGiB volume %s", sizeGiB, name)
	return nil
}

func (d *DryRunTools) GetProperty(ctx context.Context, target, key string) (string, error) {
	return "", nil
}

func (d *DryRunTools) SetProperty(ctx context.Context, target, key, value string) error {
	d.Reporter.Progress("dry-run: would set %s=%s on %s", key, value, target)
	return nil
}
