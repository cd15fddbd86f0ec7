package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// The destructive storage operations are narrow capability interfaces so the
// pipeline can run against fakes without touching real devices.

// PartitionLayout describes what a device's partition table currently holds,
// used to decide whether the partition step's postcondition already stands.
type PartitionLayout struct {
	Partitions int
	HasEFI     bool // partition 1 carries the EFI system type
	HasPool    bool // partition 2 carries the pool-member type
}

// Satisfied reports whether the device already has exactly the layout the
// partition step would create.
func (l PartitionLayout) Satisfied() bool {
	return l.Partitions == 2 && l.HasEFI && l.HasPool
}

// PartitionTool wipes and partitions whole disks.
type PartitionTool interface {
	// Layout inspects the current partition table.
	Layout(ctx context.Context, device string) (PartitionLayout, error)
	// Partition destroys the existing table and creates the EFI system
	// partition plus a pool-member partition spanning the remainder.
	Partition(ctx context.Context, device string, efiSizeMiB int) error
}

// EncryptionTool manages block-level encryption on pool-member partitions.
type EncryptionTool interface {
	IsFormatted(ctx context.Context, device string) (bool, error)
	Format(ctx context.Context, device, passphrase string) error
	// Open exposes the decrypted mapping target under the given name.
	Open(ctx context.Context, device, name, passphrase string) error
	MappingExists(name string) bool
}

// PoolSpec is everything pool creation needs.
type PoolSpec struct {
	Name     string
	AltRoot  string
	Vdev     string // "mirror", "raidz", or "" for a plain stripe
	Targets  []string
	PoolOpts map[string]string // -o pool properties
	FSOpts   map[string]string // -O root filesystem properties
}

// PoolTool manages the pool and its dataset hierarchy.
type PoolTool interface {
	PoolExists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, spec PoolSpec) error
	DatasetExists(ctx context.Context, name string) (bool, error)
	CreateDataset(ctx context.Context, name string, props map[string]string) error
	// CreateVolume creates a zvol of the given size in GiB.
	CreateVolume(ctx context.Context, name string, sizeGiB int, props map[string]string) error
	GetProperty(ctx context.Context, target, key string) (string, error)
	SetProperty(ctx context.Context, target, key, value string) error
}

// deviceNode resolves a persistent identifier to a usable device path. The
// synthetic disk-<kernelname> fallback has no by-id symlink, so it maps back
// to the kernel device node.
func deviceNode(id string) string {
	if _, err := os.Lstat(id); err == nil {
		return id
	}
	base := filepath.Base(id)
	if kernel, ok := strings.CutPrefix(base, "disk-"); ok {
		return "/dev/" + kernel
	}
	return id
}

// partitionPath returns the path of partition n on the given device path.
// by-* symlink namespaces use a -partN suffix; kernel names ending in a digit
// (nvme0n1, mmcblk0) take pN; plain sd/vd names take a bare number.
func partitionPath(device string, n int) string {
	if strings.Contains(device, "/disk/by-") {
		return device + "-part" + strconv.Itoa(n)
	}
	last := device[len(device)-1]
	if last >= '0' && last <= '9' {
		return device + "p" + strconv.Itoa(n)
	}
	return device + strconv.Itoa(n)
}

// mappingName derives the decrypted target name from a persistent identifier.
func mappingName(id string) string {
	return "luks-" + filepath.Base(id)
}
