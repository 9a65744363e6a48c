package location

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"googlemaps.github.io/maps"
)

// commandRunner runs an external tool and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s not found: %w", name, err)
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// networkScanner collects radio environment hints for network geolocation.
type networkScanner struct {
	run commandRunner
}

func newNetworkScanner() *networkScanner {
	return &networkScanner{run: execRunner}
}

// wifiAccessPoints lists nearby access points with nmcli. nmcli escapes the
// colons inside BSSIDs as "\:" in terse mode.
func (n *networkScanner) wifiAccessPoints(ctx context.Context) ([]maps.WiFiAccessPoint, error) {
	output, err := n.run(ctx, "nmcli", "-t", "-f", "BSSID,SIGNAL", "dev", "wifi", "list")
	if err != nil {
		return nil, fmt.Errorf("failed to run nmcli: %w", err)
	}

	var aps []maps.WiFiAccessPoint
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), `\:`, "-")
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			continue
		}
		mac := strings.ReplaceAll(strings.TrimSpace(line[:idx]), "-", ":")
		if !isValidMAC(mac) {
			continue
		}
		signal, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
		if err != nil {
			continue
		}
		aps = append(aps, maps.WiFiAccessPoint{
			MACAddress:     mac,
			SignalStrength: float64(signal),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan nmcli output: %w", err)
	}
	if len(aps) == 0 {
		return nil, errors.New("no wifi access points found")
	}
	return aps, nil
}

// cellTowers reads the serving cell of the given modem with mmcli.
func (n *networkScanner) cellTowers(ctx context.Context, modemIndex int) ([]maps.CellTower, error) {
	output, err := n.run(ctx, "mmcli", "-m", strconv.Itoa(modemIndex), "--output-keyvalue")
	if err != nil {
		return nil, fmt.Errorf("failed to run mmcli for modem %d: %w", modemIndex, err)
	}

	var tower maps.CellTower
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch key {
		case "modem.3gpp.operator-code":
			// MCC is always three digits, the rest is the MNC
			if len(value) < 5 {
				continue
			}
			mcc, err1 := strconv.Atoi(value[:3])
			mnc, err2 := strconv.Atoi(value[3:])
			if err1 != nil || err2 != nil {
				continue
			}
			tower.MobileCountryCode, tower.MobileNetworkCode = mcc, mnc
		case "modem.3gpp.location-area-code":
			if lac, err := strconv.ParseInt(value, 16, 32); err == nil {
				tower.LocationAreaCode = int(lac)
			}
		case "modem.3gpp.cell-id":
			if cid, err := strconv.ParseInt(value, 16, 64); err == nil {
				tower.CellID = int(cid)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan mmcli output: %w", err)
	}

	if tower.MobileCountryCode == 0 || tower.MobileNetworkCode == 0 {
		return nil, errors.New("incomplete cell tower data")
	}
	return []maps.CellTower{tower}, nil
}

// isValidMAC checks if the MAC address is in a valid format (e.g., "00:14:22:01:23:45").
func isValidMAC(mac string) bool {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return false
	}
	for _, part := range parts {
		if len(part) != 2 {
			return false
		}
		if _, err := strconv.ParseUint(part, 16, 8); err != nil {
			return false
		}
	}
	return true
}
