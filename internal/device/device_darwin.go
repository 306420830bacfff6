//go:build darwin

package device

import "golang.org/x/sys/unix"

// platformID reads the hardware UUID the kernel exposes as kern.uuid.
func platformID() (string, error) {
	return unix.Sysctl("kern.uuid")
}
