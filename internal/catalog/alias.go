package catalog

import (
	"sort"
	"strings"
)

// Alias name schemes excluded from identifier selection. wwn- names duplicate
// the vendor alias for the same device; nvme-eui. names are the NVMe
// endurance-group unique identifier form of the same duplication.
const (
	wwnPrefix = "wwn-"
	euiPrefix = "nvme-eui."
	partMark  = "-part"
)

// qualifyingAliases filters a device's by-id names down to those usable as a
// persistent identifier: whole-disk entries that are not WWN or NVMe-EUI
// aliases. The result is sorted so selection order is canonical, not whatever
// order the directory listed them in.
func qualifyingAliases(names []string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, wwnPrefix) || strings.HasPrefix(n, euiPrefix) {
			continue
		}
		if strings.Contains(n, partMark) {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SelectAlias picks the persistent identifier name for a device: the first
// qualifying alias in canonical sort order, or the synthetic disk-<kernelname>
// fallback when none qualify. The sort-first tie-break is deliberate policy.
func SelectAlias(kernelName string, aliases []string) string {
	qualified := qualifyingAliases(aliases)
	if len(qualified) > 0 {
		return qualified[0]
	}
	return "disk-" + kernelName
}
