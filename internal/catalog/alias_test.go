package catalog

import "testing"

func TestSelectAlias(t *testing.T) {
	tests := []struct {
		name    string
		kernel  string
		aliases []string
		want    string
	}{
		{
			name:    "vendor alias preferred over wwn",
			kernel:  "sda",
			aliases: []string{"wwn-0x5000c500a6e7b82b", "ata-WDC_WD40EFRX-68N_SERIAL1"},
			want:    "ata-WDC_WD40EFRX-68N_SERIAL1",
		},
		{
			name:    "nvme eui excluded",
			kernel:  "nvme0n1",
			aliases: []string{"nvme-eui.0025385c91b5a8b7", "nvme-Samsung_SSD_980_SERIAL2"},
			want:    "nvme-Samsung_SSD_980_SERIAL2",
		},
		{
			name:    "partition aliases excluded",
			kernel:  "sdb",
			aliases: []string{"ata-Disk_S1-part1", "ata-Disk_S1-part2", "ata-Disk_S1"},
			want:    "ata-Disk_S1",
		},
		{
			name:    "canonical sort order breaks ties",
			kernel:  "sdc",
			aliases: []string{"scsi-35000cca264eb01234", "ata-HGST_HUS726040ALE614_S3"},
			want:    "ata-HGST_HUS726040ALE614_S3",
		},
		{
			name:    "synthetic fallback when nothing qualifies",
			kernel:  "vda",
			aliases: []string{"wwn-0x50014ee2b9b0a1f2"},
			want:    "disk-vda",
		},
		{
			name:    "synthetic fallback with no aliases at all",
			kernel:  "vdb",
			aliases: nil,
			want:    "disk-vdb",
		},
	}

	for _, tt := range tests {
		got := SelectAlias(tt.kernel, tt.aliases)
		if got != tt.want {
			t.Errorf("%s: SelectAlias = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestQualifyingAliasesSorted(t *testing.T) {
	got := qualifyingAliases([]string{"scsi-b", "ata-z", "ata-a"})
	want := []string{"ata-a", "ata-z", "scsi-b"}
	if len(got) != len(want) {
		t.Fatalf("got %d aliases, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("alias[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
