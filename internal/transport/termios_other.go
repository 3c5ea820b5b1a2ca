//go:build !linux

package transport

import "fmt"

func configureRaw(fd, baud int) error {
	return fmt.Errorf("setting baud rate %d is not supported on this platform", baud)
}
