package device

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/net"
)

// StatusReader reports the connectivity and power state attached to each
// location sample.
type StatusReader interface {
	IsOnline() bool
	BatteryLevel() *float64
}

// HostStatus reads the state of the machine the agent runs on.
type HostStatus struct {
	powerSupplyDir string
	interfaces     func() ([]net.InterfaceStat, error)
}

func NewHostStatus() *HostStatus {
	return &HostStatus{
		powerSupplyDir: "/sys/class/power_supply",
		interfaces:     func() ([]net.InterfaceStat, error) { return net.Interfaces() },
	}
}

// IsOnline is true when at least one non-loopback interface is up and has an address.
func (h *HostStatus) IsOnline() bool {
	ifaces, err := h.interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		up, loopback := false, false
		for _, flag := range iface.Flags {
			switch flag {
			case "up":
				up = true
			case "loopback":
				loopback = true
			}
		}
		if up && !loopback && len(iface.Addrs) > 0 {
			return true
		}
	}
	return false
}

// BatteryLevel returns the first battery capacity in percent, or nil on
// hosts without a battery.
func (h *HostStatus) BatteryLevel() *float64 {
	matches, err := filepath.Glob(filepath.Join(h.powerSupplyDir, "BAT*", "capacity"))
	if err != nil || len(matches) == 0 {
		return nil
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return nil
	}
	level, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return nil
	}
	return &level
}
