// Package deviceid discovers the identifier an agent reports as device_id.
package deviceid

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// serialSuffixLen is how many trailing serial characters identify a
// board; Raspberry Pi serials are zero padded to 16 hex digits.
const serialSuffixLen = 8

// ErrNoSerial is returned when cpuinfo has no Serial line.
var ErrNoSerial = errors.New("no Serial entry in cpuinfo")

// Resolve returns override when set, else the cpuinfo serial, else the
// hostname.
func Resolve(override, cpuinfoPath string) (string, error) {
	if id := strings.TrimSpace(override); id != "" {
		return id, nil
	}
	if serial, err := FromCPUInfo(cpuinfoPath); err == nil {
		return serial, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve device id: %w", err)
	}
	return host, nil
}

// FromCPUInfo reads the "Serial : ..." line of a /proc/cpuinfo style
// file and returns its last eight characters.
func FromCPUInfo(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Serial" {
			continue
		}
		serial := strings.TrimSpace(value)
		if serial == "" {
			return "", ErrNoSerial
		}
		if len(serial) > serialSuffixLen {
			serial = serial[len(serial)-serialSuffixLen:]
		}
		return serial, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", ErrNoSerial
}
