package transport

import (
	"fmt"
	"slices"

	"go.bug.st/serial"
)

// ListSerialPorts returns the serial devices visible to the OS.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	slices.Sort(ports)

	return ports, nil
}

// SerialPortPresent reports whether path is one of the enumerated serial ports.
func SerialPortPresent(path string) (bool, error) {
	ports, err := ListSerialPorts()
	if err != nil {
		return false, err
	}

	return slices.Contains(ports, path), nil
}
