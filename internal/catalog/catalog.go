// Package catalog enumerates the host's block devices and resolves each to a
// persistent identifier suitable for pool membership. A scan is a point-in-time
// snapshot: no caching, no background watching.
package catalog

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/voidforge/zinstall/internal/report"
)

// Bus classifies how a device is attached.
type Bus string

const (
	BusUSB  Bus = "USB"
	BusDisk Bus = "DISK"
	BusNVMe Bus = "NVME"
)

// Device represents one whole disk visible to the kernel.
// Read-only after a scan completes.
type Device struct {
	Name    string   // kernel name: sda, nvme0n1
	Path    string   // /dev/sda
	Size    int64    // bytes
	Bus     Bus      //
	Model   string   //
	Aliases []string // qualifying /dev/disk/by-id names, sorted
	ID      string   // selected persistent identifier (absolute path)
}

// SizeHuman returns the device size in IEC units.
func (d Device) SizeHuman() string {
	return humanize.IBytes(uint64(d.Size))
}

// Scanner reads device data from the given filesystem roots. The zero-value
// paths are filled in by NewScanner; tests point them at fixture trees.
type Scanner struct {
	SysBlock string // /sys/block
	ByID     string // /dev/disk/by-id
	Dev      string // /dev

	Reporter *report.Reporter // optional; exclusions fall back to slog
}

func NewScanner(r *report.Reporter) *Scanner {
	return &Scanner{
		SysBlock: "/sys/block",
		ByID:     "/dev/disk/by-id",
		Dev:      "/dev",
		Reporter: r,
	}
}

// skipPrefixes are pseudo-devices that never hold an installation: loopback,
// optical, ramdisks, device-mapper targets and floppies.
var skipPrefixes = []string{"loop", "sr", "ram", "zram", "dm-", "fd", "md"}

// Scan enumerates all whole-disk block devices, classifies them and resolves
// their persistent identifiers. A device that cannot be sized or classified is
// logged and excluded; the remaining catalog is still valid.
func (s *Scanner) Scan() ([]Device, error) {
	entries, err := os.ReadDir(s.SysBlock)
	if err != nil {
		return nil, err
	}

	aliases := s.readAliases()

	var devices []Device
	for _, entry := range entries {
		name := entry.Name()
		if skipDevice(name) {
			continue
		}

		dev, ok := s.scanDevice(name, aliases[name])
		if !ok {
			s.warn("device_excluded", "name", name)
			continue
		}
		devices = append(devices, dev)
	}

	return devices, nil
}

func (s *Scanner) warn(msg string, args ...any) {
	if s.Reporter != nil {
		s.Reporter.Warn(msg, args...)
		return
	}
	slog.Warn(msg, args...)
}

func skipDevice(name string) bool {
	for _, p := range skipPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// scanDevice gathers data for a single device from sysfs.
func (s *Scanner) scanDevice(name string, names []string) (Device, bool) {
	blockPath := filepath.Join(s.SysBlock, name)

	dev := Device{
		Name: name,
		Path: filepath.Join(s.Dev, name),
	}

	// Size (in 512-byte sectors)
	data, err := os.ReadFile(filepath.Join(blockPath, "size"))
	if err != nil {
		return dev, false
	}
	sectors, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || sectors == 0 {
		return dev, false
	}
	dev.Size = sectors * 512

	dev.Bus = s.classify(name)

	// Model
	if data, err := os.ReadFile(filepath.Join(blockPath, "device", "model")); err == nil {
		dev.Model = strings.TrimSpace(string(data))
	}

	dev.Aliases = qualifyingAliases(names)
	dev.ID = s.identifierPath(name, dev.Aliases)

	return dev, true
}

// classify determines the bus from the kernel name and the sysfs device path.
// NVMe namespaces are named nvme*; USB disks resolve through a usb segment in
// their sysfs ancestry; everything else is a fixed ATA/SCSI disk.
func (s *Scanner) classify(name string) Bus {
	if strings.HasPrefix(name, "nvme") {
		return BusNVMe
	}
	if target, err := filepath.EvalSymlinks(filepath.Join(s.SysBlock, name)); err == nil {
		if strings.Contains(target, "/usb") {
			return BusUSB
		}
	}
	return BusDisk
}

// readAliases walks the by-id namespace and groups symlink names by the kernel
// name of the whole device they resolve to.
func (s *Scanner) readAliases() map[string][]string {
	result := make(map[string][]string)

	entries, err := os.ReadDir(s.ByID)
	if err != nil {
		return result
	}

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		linkPath := filepath.Join(s.ByID, entry.Name())
		target, err := filepath.EvalSymlinks(linkPath)
		if err != nil {
			continue
		}

		kernel := filepath.Base(target)
		result[kernel] = append(result[kernel], entry.Name())
	}

	return result
}

// identifierPath returns the absolute persistent identifier for a device:
// a by-id path when an alias qualified, else the synthetic disk-<name> path
// under the by-id directory.
func (s *Scanner) identifierPath(name string, aliases []string) string {
	return filepath.Join(s.ByID, SelectAlias(name, aliases))
}
