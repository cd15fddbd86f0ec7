package pipeline

import "strconv"

// datasetSpec is one node of the fixed dataset tree.
type datasetSpec struct {
	Name  string // relative to the pool
	Props map[string]string
}

// datasetTree returns the fixed hierarchy in creation order: a non-mounted
// grouping dataset for root variants, the root itself, home, and the /var
// subtree. Quotas are attached when the corresponding size is non-zero.
func datasetTree(rootGiB, homeGiB int) []datasetSpec {
	rootProps := map[string]string{"mountpoint": "/", "canmount": "noauto"}
	if rootGiB > 0 {
		rootProps["quota"] = strconv.Itoa(rootGiB) + "G"
	}
	homeProps := map[string]string{"mountpoint": "/home"}
	if homeGiB > 0 {
		homeProps["quota"] = strconv.Itoa(homeGiB) + "G"
	}

	return []datasetSpec{
		{Name: "ROOT", Props: map[string]string{"mountpoint": "none"}},
		{Name: "ROOT/default", Props: rootProps},
		{Name: "home", Props: homeProps},
		{Name: "var", Props: map[string]string{"mountpoint": "/var", "canmount": "off"}},
		{Name: "var/cache", Props: nil},
		{Name: "var/log", Props: nil},
		{Name: "var/spool", Props: nil},
		{Name: "var/tmp", Props: map[string]string{"com.sun:auto-snapshot": "false"}},
	}
}

// poolCreationOpts returns the pool-wide and root-filesystem properties
// applied at creation: 4K alignment, POSIX ACLs, relaxed atime, inode-stored
// xattrs, dynamic dnodes, Unicode filename normalization, and nothing mounted
// or exposing device nodes by default.
func poolCreationOpts() (pool, fs map[string]string) {
	pool = map[string]string{
		"ashift": "12",
	}
	fs = map[string]string{
		"acltype":       "posixacl",
		"relatime":      "on",
		"xattr":         "sa",
		"dnodesize":     "auto",
		"normalization": "formD",
		"mountpoint":    "none",
		"canmount":      "off",
		"devices":       "off",
	}
	return pool, fs
}
