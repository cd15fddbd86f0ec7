package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Exec-backed tools shelling out to sgdisk, cryptsetup and zpool/zfs.

// ExecPartitionTool drives sgdisk.
type ExecPartitionTool struct{}

func (ExecPartitionTool) Layout(ctx context.Context, device string) (PartitionLayout, error) {
	out, err := exec.CommandContext(ctx, "sgdisk", "-p", device).CombinedOutput()
	if err != nil {
		// A blank or foreign disk is an empty layout, not a failure.
		return PartitionLayout{}, nil
	}
	return parseSgdiskPrint(string(out)), nil
}

// parseSgdiskPrint extracts partition numbers and type codes from sgdisk -p
// output. Partition lines look like:
//
//	1            2048         1050623   512.0 MiB   EF00  EFI system partition
func parseSgdiskPrint(out string) PartitionLayout {
	var layout PartitionLayout
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		num, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		code := fields[5]
		layout.Partitions++
		if num == 1 && code == "EF00" {
			layout.HasEFI = true
		}
		if num == 2 && code == "BF00" {
			layout.HasPool = true
		}
	}
	return layout
}

func (ExecPartitionTool) Partition(ctx context.Context, device string, efiSizeMiB int) error {
	if out, err := exec.CommandContext(ctx, "sgdisk", "--zap-all", device).CombinedOutput(); err != nil {
		return fmt.Errorf("sgdisk --zap-all failed: %s: %w", strings.TrimSpace(string(out)), err)
	}

	args := []string{
		"-n", fmt.Sprintf("1:1M:+%dM", efiSizeMiB), "-t", "1:EF00", "-c", "1:EFI",
		"-n", "2:0:0", "-t", "2:BF00", "-c", "2:pool",
		device,
	}
	if out, err := exec.CommandContext(ctx, "sgdisk", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("sgdisk partition create failed: %s: %w", strings.TrimSpace(string(out)), err)
	}

	// Let the kernel re-read the table before anyone touches the partitions.
	exec.CommandContext(ctx, "partprobe", device).Run()
	return nil
}

// ExecEncryptionTool drives cryptsetup. Passphrases travel on stdin, never on
// the command line.
type ExecEncryptionTool struct{}

func (ExecEncryptionTool) IsFormatted(ctx context.Context, device string) (bool, error) {
	err := exec.CommandContext(ctx, "cryptsetup", "isLuks", device).Run()
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return false, nil
	}
	return false, fmt.Errorf("cryptsetup isLuks failed: %w", err)
}

func (ExecEncryptionTool) Format(ctx context.Context, device, passphrase string) error {
	cmd := exec.CommandContext(ctx, "cryptsetup", "luksFormat", "--type", "luks2",
		"--batch-mode", "--key-file", "-", device)
	cmd.Stdin = strings.NewReader(passphrase)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cryptsetup luksFormat failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (ExecEncryptionTool) Open(ctx context.Context, device, name, passphrase string) error {
	cmd := exec.CommandContext(ctx, "cryptsetup", "open", "--key-file", "-", device, name)
	cmd.Stdin = strings.NewReader(passphrase)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cryptsetup open failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (ExecEncryptionTool) MappingExists(name string) bool {
	_, err := os.Stat(filepath.Join("/dev/mapper", name))
	return err == nil
}

// ExecPoolTool drives zpool and zfs.
type ExecPoolTool struct{}

func (ExecPoolTool) PoolExists(ctx context.Context, name string) (bool, error) {
	out, err := exec.CommandContext(ctx, "zpool", "list", "-H", "-o", "name").CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("zpool list failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

func (ExecPoolTool) Create(ctx context.Context, spec PoolSpec) error {
	args := []string{"create", "-f"}
	for _, k := range sortedKeys(spec.PoolOpts) {
		args = append(args, "-o", k+"="+spec.PoolOpts[k])
	}
	for _, k := range sortedKeys(spec.FSOpts) {
		args = append(args, "-O", k+"="+spec.FSOpts[k])
	}
	if spec.AltRoot != "" {
		args = append(args, "-R", spec.AltRoot)
	}
	args = append(args, spec.Name)
	if spec.Vdev != "" {
		args = append(args, spec.Vdev)
	}
	args = append(args, spec.Targets...)

	if out, err := exec.CommandContext(ctx, "zpool", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("zpool create failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (ExecPoolTool) DatasetExists(ctx context.Context, name string) (bool, error) {
	err := exec.CommandContext(ctx, "zfs", "list", "-H", "-o", "name", name).Run()
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return false, nil
	}
	return false, fmt.Errorf("zfs list failed: %w", err)
}

func (ExecPoolTool) CreateDataset(ctx context.Context, name string, props map[string]string) error {
	args := []string{"create"}
	for _, k := range sortedKeys(props) {
		args = append(args, "-o", k+"="+props[k])
	}
	args = append(args, name)
	if out, err := exec.CommandContext(ctx, "zfs", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("zfs create failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (ExecPoolTool) CreateVolume(ctx context.Context, name string, sizeGiB int, props map[string]string) error {
	args := []string{"create", "-V", fmt.Sprintf("%dG", sizeGiB)}
	for _, k := range sortedKeys(props) {
		args = append(args, "-o", k+"="+props[k])
	}
	args = append(args, name)
	if out, err := exec.CommandContext(ctx, "zfs", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("zfs create -V failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (ExecPoolTool) GetProperty(ctx context.Context, target, key string) (string, error) {
	out, err := exec.CommandContext(ctx, "zfs", "get", "-H", "-o", "value", key, target).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("zfs get failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (ExecPoolTool) SetProperty(ctx context.Context, target, key, value string) error {
	if out, err := exec.CommandContext(ctx, "zfs", "set", key+"="+value, target).CombinedOutput(); err != nil {
		return fmt.Errorf("zfs set failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// sortedKeys keeps generated command lines deterministic.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
