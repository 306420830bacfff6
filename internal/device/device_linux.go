//go:build linux

package device

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// platformID reads the systemd/dbus machine id.
func platformID() (string, error) {
	var errs []error
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
		errs = append(errs, fmt.Errorf("%s is empty", path))
	}
	return "", errors.Join(errs...)
}
