package transport

import (
	"context"
	"errors"
)

// InvalidFd is the descriptor value of a transport that is not open.
const InvalidFd = -1

var (
	// ErrNotConnected is returned by Read/Write on a transport that is not open.
	ErrNotConnected = errors.New("transport is not connected")
	// ErrWoken is returned by Poller.Wait once the poller has been woken for shutdown.
	ErrWoken = errors.New("poller woken")
	// ErrPollUnsupported is returned where no readiness backend exists for the platform.
	ErrPollUnsupported = errors.New("descriptor polling unsupported on this platform")
)

// Transport is a duplex byte channel to the baseband identified by a pollable descriptor.
type Transport interface {
	Name() string
	Open(ctx context.Context) error
	Close() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Fd returns the pollable descriptor, or InvalidFd when not open.
	Fd() int
}

// Poller blocks until a descriptor is readable. Wake unblocks every current
// and future Wait with ErrWoken.
type Poller interface {
	Wait(fd int) error
	Wake() error
	Close() error
}
