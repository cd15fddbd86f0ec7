// Package topology validates pool layout choices against vdev arity rules.
package topology

import "fmt"

// Kind is the redundancy scheme of the pool's single top-level vdev.
type Kind string

const (
	Stripe Kind = "stripe"
	Mirror Kind = "mirror"
	RaidZ  Kind = "raidz"
)

// Kinds lists all schemes in menu order.
var Kinds = []Kind{Stripe, Mirror, RaidZ}

// MinDrives returns the smallest drive count the scheme accepts.
func (k Kind) MinDrives() int {
	switch k {
	case Mirror:
		return 2
	case RaidZ:
		return 3
	default:
		return 1
	}
}

// Description returns operator-facing redundancy text for confirmation prompts.
func (k Kind) Description() string {
	switch k {
	case Stripe:
		return "striped, no redundancy (any drive failure loses the pool)"
	case Mirror:
		return "mirrored, survives failure of all but one drive per mirror"
	case RaidZ:
		return "raidz1, survives failure of one drive"
	default:
		return "unknown"
	}
}

// Valid reports whether k is a known scheme.
func (k Kind) Valid() bool {
	switch k {
	case Stripe, Mirror, RaidZ:
		return true
	}
	return false
}

// Validate checks whether the scheme is legal for the given drive count.
// It is pure: the returned error carries the operator-facing reason and the
// unmet minimum, nothing is touched.
func Validate(k Kind, drives int) error {
	if !k.Valid() {
		return fmt.Errorf("unknown pool type %q", k)
	}
	if drives < k.MinDrives() {
		return fmt.Errorf("%s requires at least %d drives, %d selected", k, k.MinDrives(), drives)
	}
	if k == Mirror && drives%2 != 0 {
		return fmt.Errorf("mirror requires an even drive count, %d selected", drives)
	}
	return nil
}
