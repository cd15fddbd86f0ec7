// Package wizard collects the operator's install choices through a strictly
// linear state flow and emits a single validated, immutable install
// configuration. Every rejection loops back to the offending state only;
// cancellation at any state produces nothing.
package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/voidforge/zinstall/internal/catalog"
	"github.com/voidforge/zinstall/internal/plan"
	"github.com/voidforge/zinstall/internal/report"
	"github.com/voidforge/zinstall/internal/topology"
)

// State names the wizard's position in the flow.
type State int

const (
	StateDeviceDiscovery State = iota
	StateDriveSelection
	StateTopologyChoice
	StateParameterEntry
	StateSecretEntry
	StateConfirmation
	StateReady
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateDeviceDiscovery:
		return "device-discovery"
	case StateDriveSelection:
		return "drive-selection"
	case StateTopologyChoice:
		return "topology-choice"
	case StateParameterEntry:
		return "parameter-entry"
	case StateSecretEntry:
		return "secret-entry"
	case StateConfirmation:
		return "confirmation"
	case StateReady:
		return "ready"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Wizard runs the configuration flow over a device catalog and a dialog.
type Wizard struct {
	Devices  []catalog.Device
	Dialog   Dialog
	Reporter *report.Reporter

	// Host policy and defaults.
	MinDrives       int
	DefaultPoolName string

	// answers is the ephemeral scratch state; dropped on cancellation.
	answers answers
}

type answers struct {
	drives   []catalog.Device
	kind     topology.Kind
	poolName string
	swapGiB  int
	rootGiB  int
	homeGiB  int
	hostname string
	username string
	locale   string
	diskPass string
	userPass string
}

// Run drives the state machine to completion. It returns the install
// configuration from the Ready state, or ErrCancelled when the operator backs
// out at any state.
func (w *Wizard) Run() (*plan.InstallConfig, error) {
	if w.MinDrives < 1 {
		w.MinDrives = 1
	}
	if w.DefaultPoolName == "" {
		w.DefaultPoolName = "zroot"
	}

	state := StateDeviceDiscovery
	for {
		w.Reporter.Info("wizard_state", "state", state.String())

		var err error
		switch state {
		case StateDeviceDiscovery:
			state, err = w.deviceDiscovery()
		case StateDriveSelection:
			state, err = w.driveSelection()
		case StateTopologyChoice:
			state, err = w.topologyChoice()
		case StateParameterEntry:
			state, err = w.parameterEntry()
		case StateSecretEntry:
			state, err = w.secretEntry()
		case StateConfirmation:
			state, err = w.confirmation()
		case StateReady:
			return w.emit()
		case StateCancelled:
			w.cancel()
			return nil, ErrCancelled
		}

		if err != nil {
			if err == ErrCancelled {
				w.cancel()
				return nil, ErrCancelled
			}
			w.cancel()
			return nil, err
		}
	}
}

// cancel drops all collected answers, secrets included. No configuration and
// no side effects survive a cancelled run.
func (w *Wizard) cancel() {
	w.answers = answers{}
	w.Reporter.Info("wizard_cancelled")
}

func (w *Wizard) deviceDiscovery() (State, error) {
	if len(w.Devices) == 0 {
		return StateCancelled, fmt.Errorf("no installable block devices found")
	}
	w.Reporter.Info("devices_discovered", "count", len(w.Devices))
	return StateDriveSelection, nil
}

func (w *Wizard) driveSelection() (State, error) {
	options := make([]Option, len(w.Devices))
	for i, d := range w.Devices {
		options[i] = Option{
			Key:   d.ID,
			Label: fmt.Sprintf("%-12s %-8s %-10s %s", d.Name, d.Bus, d.SizeHuman(), d.Model),
		}
	}

	keys, err := w.Dialog.Checklist("Select the drives for the new pool (ALL DATA ON THEM WILL BE DESTROYED)", options)
	if err != nil {
		return StateCancelled, err
	}

	if len(keys) == 0 {
		w.Dialog.Say("At least one drive must be selected.")
		return StateDriveSelection, nil
	}
	if len(keys) < w.MinDrives {
		w.Dialog.Say(fmt.Sprintf("This host requires at least %d drives; %d selected.", w.MinDrives, len(keys)))
		return StateDriveSelection, nil
	}

	byID := make(map[string]catalog.Device, len(w.Devices))
	for _, d := range w.Devices {
		byID[d.ID] = d
	}
	w.answers.drives = w.answers.drives[:0]
	for _, k := range keys {
		w.answers.drives = append(w.answers.drives, byID[k])
	}

	w.Reporter.Info("drives_selected", "count", len(keys))
	return StateTopologyChoice, nil
}

func (w *Wizard) topologyChoice() (State, error) {
	options := make([]Option, len(topology.Kinds))
	for i, k := range topology.Kinds {
		options[i] = Option{
			Key:   string(k),
			Label: fmt.Sprintf("%-8s %s (min %d drives)", k, k.Description(), k.MinDrives()),
		}
	}

	key, err := w.Dialog.Select("Choose the pool redundancy scheme", options)
	if err != nil {
		return StateCancelled, err
	}

	kind := topology.Kind(key)
	if err := topology.Validate(kind, len(w.answers.drives)); err != nil {
		// Rejection returns to this state with the selection preserved.
		w.Dialog.Say("Rejected: " + err.Error())
		w.Reporter.Warn("topology_rejected", "topology", key, "drives", len(w.answers.drives), "reason", err.Error())
		return StateTopologyChoice, nil
	}

	w.answers.kind = kind
	w.Reporter.Info("topology_chosen", "topology", key)
	return StateParameterEntry, nil
}

// parameterEntry is a menu loop: every field stays editable until the
// operator explicitly continues.
func (w *Wizard) parameterEntry() (State, error) {
	a := &w.answers
	if a.poolName == "" {
		a.poolName = w.DefaultPoolName
	}
	if a.locale == "" {
		a.locale = "en_US.UTF-8"
	}

	for {
		options := []Option{
			{Key: "pool", Label: "Pool name: " + a.poolName},
			{Key: "swap", Label: fmt.Sprintf("Swap size: %s", sizeLabel(a.swapGiB))},
			{Key: "root", Label: fmt.Sprintf("Root size: %s", sizeLabel(a.rootGiB))},
			{Key: "home", Label: fmt.Sprintf("Home size: %s", sizeLabel(a.homeGiB))},
			{Key: "hostname", Label: "Hostname: " + a.hostname},
			{Key: "username", Label: "Username: " + a.username},
			{Key: "locale", Label: "Locale: " + a.locale},
			{Key: "continue", Label: "Continue"},
		}

		key, err := w.Dialog.Select("Installation parameters", options)
		if err != nil {
			return StateCancelled, err
		}

		switch key {
		case "pool":
			name, err := w.Dialog.Input("Pool name", a.poolName)
			if err != nil {
				return StateCancelled, err
			}
			if strings.ContainsAny(name, " /") || name == "" {
				w.Dialog.Say("Pool names must be non-empty and contain no spaces or slashes.")
				continue
			}
			a.poolName = name
		case "swap":
			if err := w.inputSize("Swap size in GiB (0 = no swap volume)", &a.swapGiB); err != nil {
				return StateCancelled, err
			}
		case "root":
			if err := w.inputSize("Root quota in GiB (0 = remaining space)", &a.rootGiB); err != nil {
				return StateCancelled, err
			}
		case "home":
			if err := w.inputSize("Home quota in GiB (0 = remaining space)", &a.homeGiB); err != nil {
				return StateCancelled, err
			}
		case "hostname":
			v, err := w.Dialog.Input("Hostname", a.hostname)
			if err != nil {
				return StateCancelled, err
			}
			a.hostname = v
		case "username":
			v, err := w.Dialog.Input("Username", a.username)
			if err != nil {
				return StateCancelled, err
			}
			a.username = v
		case "locale":
			v, err := w.Dialog.Input("Locale", a.locale)
			if err != nil {
				return StateCancelled, err
			}
			a.locale = v
		case "continue":
			w.Reporter.Info("parameters_committed", "pool", a.poolName)
			return StateSecretEntry, nil
		}
	}
}

func (w *Wizard) inputSize(title string, dst *int) error {
	v, err := w.Dialog.Input(title, strconv.Itoa(*dst))
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		w.Dialog.Say("Enter a whole number of GiB, 0 or greater.")
		return nil
	}
	*dst = n
	return nil
}

func sizeLabel(gib int) string {
	if gib == 0 {
		return "remaining space"
	}
	return strconv.Itoa(gib) + " GiB"
}

func (w *Wizard) secretEntry() (State, error) {
	choice, err := w.Dialog.Select("Encrypt the pool members with a passphrase?", []Option{
		{Key: "yes", Label: "Yes, encrypt all pool members"},
		{Key: "no", Label: "No encryption"},
	})
	if err != nil {
		return StateCancelled, err
	}

	if choice == "yes" {
		pass, err := w.collectSecret("Disk encryption passphrase")
		if err != nil {
			return StateCancelled, err
		}
		w.answers.diskPass = pass
	} else {
		w.answers.diskPass = ""
	}

	userPass, err := w.collectSecret("Password for user " + orPlaceholder(w.answers.username))
	if err != nil {
		return StateCancelled, err
	}
	w.answers.userPass = userPass

	w.Reporter.Info("secrets_collected", "encryption", choice == "yes")
	return StateConfirmation, nil
}

// collectSecret prompts twice and repeats only this secret's sub-state until
// both entries match and are non-empty.
func (w *Wizard) collectSecret(title string) (string, error) {
	for {
		first, err := w.Dialog.Secret(title)
		if err != nil {
			return "", err
		}
		if first == "" {
			w.Dialog.Say("The passphrase must not be empty.")
			continue
		}
		second, err := w.Dialog.Secret(title + " (again)")
		if err != nil {
			return "", err
		}
		if first == second {
			return first, nil
		}
		w.Dialog.Say("Entries do not match, try again.")
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func (w *Wizard) confirmation() (State, error) {
	a := &w.answers

	w.Dialog.Say("")
	w.Dialog.Say("The following drives will be WIPED and added to pool " + a.poolName + ":")
	for _, d := range a.drives {
		w.Dialog.Say(fmt.Sprintf("  %s  %s %s (%s)", d.ID, d.Bus, d.SizeHuman(), d.Model))
	}
	w.Dialog.Say("Topology: " + string(a.kind) + " — " + a.kind.Description())
	if a.diskPass != "" {
		w.Dialog.Say("Encryption: LUKS2 on every pool member")
	}

	choice, err := w.Dialog.Select("Proceed? This destroys all data on the listed drives.", []Option{
		{Key: "no", Label: "No, cancel the installation"},
		{Key: "yes", Label: "Yes, destroy the listed drives and install"},
	})
	if err != nil {
		return StateCancelled, err
	}
	if choice != "yes" {
		return StateCancelled, nil
	}

	w.Reporter.Info("confirmed", "pool", a.poolName, "topology", string(a.kind), "drives", len(a.drives))
	return StateReady, nil
}

// emit builds and validates the single immutable configuration.
func (w *Wizard) emit() (*plan.InstallConfig, error) {
	a := &w.answers

	drives := make([]string, len(a.drives))
	for i, d := range a.drives {
		drives[i] = d.ID
	}

	cfg := &plan.InstallConfig{
		PoolName:       a.poolName,
		PoolType:       a.kind,
		Drives:         drives,
		SwapGiB:        a.swapGiB,
		RootGiB:        a.rootGiB,
		HomeGiB:        a.homeGiB,
		Hostname:       a.hostname,
		Username:       a.username,
		Locale:         a.locale,
		DiskPassphrase: a.diskPass,
		UserPassword:   a.userPass,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("wizard produced an invalid configuration: %w", err)
	}

	w.answers = answers{}
	return cfg, nil
}
