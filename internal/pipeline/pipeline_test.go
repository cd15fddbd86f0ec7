package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/voidforge/zinstall/internal/plan"
	"github.com/voidforge/zinstall/internal/report"
	"github.com/voidforge/zinstall/internal/topology"
)

// fakeTools implements all three capability interfaces in memory and counts
// destructive calls.
type fakeTools struct {
	partitioned map[string]bool
	luks        map[string]bool
	mappings    map[string]bool
	pools       map[string]bool
	datasets    map[string]bool
	volumes     map[string]int
	props       map[string]string

	partitionCalls int
	formatCalls    int
	openCalls      int
	createCalls    int
	setCalls       int
	createTargets  []string
	createVdev     string

	failOn string // operation name that should fail
}

func newFakeTools() *fakeTools {
	return &fakeTools{
		partitioned: make(map[string]bool),
		luks:        make(map[string]bool),
		mappings:    make(map[string]bool),
		pools:       make(map[string]bool),
		datasets:    make(map[string]bool),
		volumes:     make(map[string]int),
		props:       make(map[string]string),
	}
}

func (f *fakeTools) Layout(ctx context.Context, device string) (PartitionLayout, error) {
	if f.partitioned[device] {
		return PartitionLayout{Partitions: 2, HasEFI: true, HasPool: true}, nil
	}
	return PartitionLayout{}, nil
}

func (f *fakeTools) Partition(ctx context.Context, device string, efiSizeMiB int) error {
	if f.failOn == "partition" {
		return errors.New("sgdisk exited 2")
	}
	f.partitionCalls++
	f.partitioned[device] = true
	return nil
}

func (f *fakeTools) IsFormatted(ctx context.Context, device string) (bool, error) {
	return f.luks[device], nil
}

func (f *fakeTools) Format(ctx context.Context, device, passphrase string) error {
	if f.failOn == "format" {
		return errors.New("cryptsetup exited 1")
	}
	f.formatCalls++
	f.luks[device] = true
	return nil
}

func (f *fakeTools) Open(ctx context.Context, device, name, passphrase string) error {
	f.openCalls++
	f.mappings[name] = true
	return nil
}

func (f *fakeTools) MappingExists(name string) bool {
	return f.mappings[name]
}

func (f *fakeTools) PoolExists(ctx context.Context, name string) (bool, error) {
	return f.pools[name], nil
}

func (f *fakeTools) Create(ctx context.Context, spec PoolSpec) error {
	if f.failOn == "pool-create" {
		return errors.New("zpool create exited 1")
	}
	f.createCalls++
	f.createTargets = spec.Targets
	f.createVdev = spec.Vdev
	f.pools[spec.Name] = true
	return nil
}

func (f *fakeTools) DatasetExists(ctx context.Context, name string) (bool, error) {
	return f.datasets[name], nil
}

func (f *fakeTools) CreateDataset(ctx context.Context, name string, props map[string]string) error {
	f.datasets[name] = true
	return nil
}

func (f *fakeTools) CreateVolume(ctx context.Context, name string, sizeGiB int, props map[string]string) error {
	f.volumes[name] = sizeGiB
	return nil
}

func (f *fakeTools) GetProperty(ctx context.Context, target, key string) (string, error) {
	return f.props[target+":"+key], nil
}

func (f *fakeTools) SetProperty(ctx context.Context, target, key, value string) error {
	f.setCalls++
	f.props[target+":"+key] = value
	return nil
}

func newTestPipeline(f *fakeTools) *Pipeline {
	return &Pipeline{
		Partitioner: f,
		Crypt:       f,
		Pool:        f,
		Reporter:    report.New(""),
		AltRoot:     "/mnt",
		EFISizeMiB:  512,
	}
}

func mirrorConfig(passphrase string) *plan.InstallConfig {
	return &plan.InstallConfig{
		PoolName: "zroot",
		PoolType: topology.Mirror,
		Drives: []string{
			"/dev/disk/by-id/nvme-A",
			"/dev/disk/by-id/nvme-B",
		},
		DiskPassphrase: passphrase,
	}
}

// Scenario A: two NVMe drives, mirror, encrypted. Exactly 2 partition
// operations, 2 format/open pairs, one pool create over both decrypted
// targets, and the fixed 8-dataset tree.
func TestRunEncryptedMirror(t *testing.T) {
	f := newFakeTools()
	p := newTestPipeline(f)

	if err := p.Run(context.Background(), mirrorConfig("secret")); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if f.partitionCalls != 2 {
		t.Errorf("partition calls = %d, want 2", f.partitionCalls)
	}
	if f.formatCalls != 2 || f.openCalls != 2 {
		t.Errorf("format/open calls = %d/%d, want 2/2", f.formatCalls, f.openCalls)
	}
	if f.createCalls != 1 {
		t.Errorf("pool create calls = %d, want 1", f.createCalls)
	}
	if f.createVdev != "mirror" {
		t.Errorf("vdev = %q, want mirror", f.createVdev)
	}

	wantTargets := []string{"/dev/mapper/luks-nvme-A", "/dev/mapper/luks-nvme-B"}
	if len(f.createTargets) != 2 {
		t.Fatalf("pool targets = %v", f.createTargets)
	}
	for i, want := range wantTargets {
		if f.createTargets[i] != want {
			t.Errorf("target[%d] = %q, want %q", i, f.createTargets[i], want)
		}
	}

	if len(f.datasets) != 8 {
		t.Errorf("dataset count = %d, want 8", len(f.datasets))
	}
	for _, name := range []string{
		"zroot/ROOT", "zroot/ROOT/default", "zroot/home",
		"zroot/var", "zroot/var/cache", "zroot/var/log", "zroot/var/spool", "zroot/var/tmp",
	} {
		if !f.datasets[name] {
			t.Errorf("dataset %s not created", name)
		}
	}

	if f.props["zroot:compression"] != "lz4" || f.props["zroot:atime"] != "off" {
		t.Errorf("pool properties not applied: %v", f.props)
	}
}

func TestRunUnencryptedUsesRawPartitions(t *testing.T) {
	f := newFakeTools()
	p := newTestPipeline(f)

	if err := p.Run(context.Background(), mirrorConfig("")); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if f.formatCalls != 0 || f.openCalls != 0 {
		t.Errorf("encryption ran without a passphrase: %d/%d", f.formatCalls, f.openCalls)
	}
	for i, want := range []string{
		"/dev/disk/by-id/nvme-A-part2",
		"/dev/disk/by-id/nvme-B-part2",
	} {
		if f.createTargets[i] != want {
			t.Errorf("target[%d] = %q, want %q", i, f.createTargets[i], want)
		}
	}
}

// Re-running an already-applied configuration must perform no destructive
// write: every step detects its postcondition and skips.
func TestRunIdempotent(t *testing.T) {
	f := newFakeTools()
	p := newTestPipeline(f)
	cfg := mirrorConfig("secret")

	if err := p.Run(context.Background(), cfg); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	partitions, formats, creates, sets := f.partitionCalls, f.formatCalls, f.createCalls, f.setCalls
	if err := p.Run(context.Background(), cfg); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if f.partitionCalls != partitions {
		t.Errorf("second run repartitioned: %d -> %d", partitions, f.partitionCalls)
	}
	if f.formatCalls != formats {
		t.Errorf("second run reformatted LUKS: %d -> %d", formats, f.formatCalls)
	}
	if f.createCalls != creates {
		t.Errorf("second run recreated the pool: %d -> %d", creates, f.createCalls)
	}
	if f.setCalls != sets {
		t.Errorf("second run reapplied properties: %d -> %d", sets, f.setCalls)
	}
}

func TestRunFailureIdentifiesStep(t *testing.T) {
	f := newFakeTools()
	f.failOn = "pool-create"
	p := newTestPipeline(f)

	err := p.Run(context.Background(), mirrorConfig(""))
	if err == nil {
		t.Fatal("expected failure")
	}

	var serr *StepError
	if !errors.As(err, &serr) {
		t.Fatalf("error is not a StepError: %v", err)
	}
	if serr.Step != StepPoolCreate {
		t.Errorf("failed step = %q, want %q", serr.Step, StepPoolCreate)
	}

	// Partitioning completed before the failure and is not rolled back.
	if f.partitionCalls != 2 {
		t.Errorf("partition calls = %d, want 2", f.partitionCalls)
	}
	if len(f.datasets) != 0 {
		t.Errorf("datasets created after failed pool create: %v", f.datasets)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	f := newFakeTools()
	p := newTestPipeline(f)

	cfg := mirrorConfig("")
	cfg.Drives = cfg.Drives[:1] // mirror with one drive

	if err := p.Run(context.Background(), cfg); err == nil {
		t.Fatal("expected validation failure before execution")
	}
	if f.partitionCalls != 0 {
		t.Errorf("invalid config still partitioned %d devices", f.partitionCalls)
	}
}

func TestRunSwapVolume(t *testing.T) {
	f := newFakeTools()
	p := newTestPipeline(f)

	cfg := mirrorConfig("")
	cfg.SwapGiB = 16

	if err := p.Run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if f.volumes["zroot/swap"] != 16 {
		t.Errorf("swap volume = %v, want zroot/swap at 16 GiB", f.volumes)
	}
}

func TestPartitionPath(t *testing.T) {
	tests := []struct {
		device string
		n      int
		want   string
	}{
		{"/dev/disk/by-id/ata-Disk_S1", 2, "/dev/disk/by-id/ata-Disk_S1-part2"},
		{"/dev/sda", 1, "/dev/sda1"},
		{"/dev/nvme0n1", 2, "/dev/nvme0n1p2"},
		{"/dev/vdb", 2, "/dev/vdb2"},
	}
	for _, tt := range tests {
		if got := partitionPath(tt.device, tt.n); got != tt.want {
			t.Errorf("partitionPath(%q, %d) = %q, want %q", tt.device, tt.n, got, tt.want)
		}
	}
}

func TestParseSgdiskPrint(t *testing.T) {
	out := `Disk /dev/sda: 7814037168 sectors, 3.6 TiB
Sector size (logical/physical): 512/4096 bytes
Number  Start (sector)    End (sector)  Size       Code  Name
   1            2048         1050623   512.0 MiB   EF00  EFI
   2         1050624      7814037134   3.6 TiB     BF00  pool
`
	layout := parseSgdiskPrint(out)
	if !layout.Satisfied() {
		t.Errorf("expected satisfied layout, got %+v", layout)
	}

	empty := parseSgdiskPrint("Disk /dev/sdb: 1000 sectors\n")
	if empty.Satisfied() || empty.Partitions != 0 {
		t.Errorf("expected empty layout, got %+v", empty)
	}

	wrong := parseSgdiskPrint(`Number  Start (sector)    End (sector)  Size       Code  Name
   1            2048      7814037134   3.6 TiB     8300  linux
`)
	if wrong.Satisfied() {
		t.Errorf("single 8300 partition reported as satisfied: %+v", wrong)
	}
}

func TestStepErrorMessage(t *testing.T) {
	err := &StepError{Step: StepPartition, Op: "partition /dev/sda", Err: fmt.Errorf("sgdisk exited 2")}
	want := "step partition: partition /dev/sda: sgdisk exited 2"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}
