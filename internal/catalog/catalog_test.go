package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voidforge/zinstall/internal/report"
)

// writeSysDevice lays out a minimal /sys/block entry for a device.
func writeSysDevice(t *testing.T, sysBlock, name, sectors, model string) {
	t.Helper()
	dir := filepath.Join(sysBlock, name)
	if err := os.MkdirAll(filepath.Join(dir, "device"), 0755); err != nil {
		t.Fatal(err)
	}
	if sectors != "" {
		if err := os.WriteFile(filepath.Join(dir, "size"), []byte(sectors+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if model != "" {
		if err := os.WriteFile(filepath.Join(dir, "device", "model"), []byte(model+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func newFixtureScanner(t *testing.T) *Scanner {
	t.Helper()
	root := t.TempDir()
	s := &Scanner{
		SysBlock: filepath.Join(root, "sys", "block"),
		ByID:     filepath.Join(root, "dev", "disk", "by-id"),
		Dev:      filepath.Join(root, "dev"),
	}
	for _, d := range []string{s.SysBlock, s.ByID} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

// linkAlias creates a by-id symlink pointing at a device node.
func linkAlias(t *testing.T, s *Scanner, alias, kernel string) {
	t.Helper()
	node := filepath.Join(s.Dev, kernel)
	if _, err := os.Stat(node); err != nil {
		if err := os.WriteFile(node, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(node, filepath.Join(s.ByID, alias)); err != nil {
		t.Fatal(err)
	}
}

func TestScanExcludesPseudoDevices(t *testing.T) {
	s := newFixtureScanner(t)
	writeSysDevice(t, s.SysBlock, "sda", "7814037168", "WDC WD40EFRX")
	writeSysDevice(t, s.SysBlock, "loop0", "131072", "")
	writeSysDevice(t, s.SysBlock, "sr0", "2097152", "DVD-RW")
	writeSysDevice(t, s.SysBlock, "zram0", "4194304", "")

	devices, err := s.Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	if devices[0].Name != "sda" {
		t.Errorf("device name = %q, want sda", devices[0].Name)
	}
}

func TestScanExcludesUnsizableDevice(t *testing.T) {
	s := newFixtureScanner(t)
	writeSysDevice(t, s.SysBlock, "sda", "", "Broken")
	writeSysDevice(t, s.SysBlock, "sdb", "1000000", "Fine")

	devices, err := s.Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(devices) != 1 || devices[0].Name != "sdb" {
		t.Fatalf("expected only sdb in catalog, got %+v", devices)
	}
}

// An exclusion must reach the reporter, and through it the install log.
func TestScanExclusionReachesReporter(t *testing.T) {
	s := newFixtureScanner(t)
	writeSysDevice(t, s.SysBlock, "sda", "", "Broken")

	logPath := filepath.Join(t.TempDir(), "install.log")
	r := report.New(logPath)
	s.Reporter = r

	if _, err := s.Scan(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	r.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "device_excluded") || !strings.Contains(string(data), "sda") {
		t.Errorf("log missing exclusion record: %q", string(data))
	}
}

func TestScanDeviceAttributes(t *testing.T) {
	s := newFixtureScanner(t)
	writeSysDevice(t, s.SysBlock, "sda", "2048", "Samsung SSD")
	linkAlias(t, s, "ata-Samsung_SSD_S123", "sda")
	linkAlias(t, s, "wwn-0x5002538d0000", "sda")

	devices, err := s.Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}

	d := devices[0]
	if d.Size != 2048*512 {
		t.Errorf("size = %d, want %d", d.Size, 2048*512)
	}
	if d.Model != "Samsung SSD" {
		t.Errorf("model = %q", d.Model)
	}
	if d.Bus != BusDisk {
		t.Errorf("bus = %q, want DISK", d.Bus)
	}
	if len(d.Aliases) != 1 || d.Aliases[0] != "ata-Samsung_SSD_S123" {
		t.Errorf("aliases = %v, want only the ata alias", d.Aliases)
	}
	want := filepath.Join(s.ByID, "ata-Samsung_SSD_S123")
	if d.ID != want {
		t.Errorf("id = %q, want %q", d.ID, want)
	}
}

func TestScanSyntheticIdentifier(t *testing.T) {
	s := newFixtureScanner(t)
	writeSysDevice(t, s.SysBlock, "vda", "4096", "")

	devices, err := s.Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	want := filepath.Join(s.ByID, "disk-vda")
	if devices[0].ID != want {
		t.Errorf("id = %q, want synthetic %q", devices[0].ID, want)
	}
}

func TestClassifyNVMe(t *testing.T) {
	s := newFixtureScanner(t)
	writeSysDevice(t, s.SysBlock, "nvme0n1", "1953525168", "Samsung SSD 980")

	devices, err := s.Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(devices) != 1 || devices[0].Bus != BusNVMe {
		t.Fatalf("expected one NVME device, got %+v", devices)
	}
}

func TestSizeHuman(t *testing.T) {
	d := Device{Size: 4 * 1024 * 1024 * 1024}
	if got := d.SizeHuman(); got != "4.0 GiB" {
		t.Errorf("SizeHuman = %q, want 4.0 GiB", got)
	}
}
