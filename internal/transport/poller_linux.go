//go:build linux

package transport

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type eventfdPoller struct {
	mu     sync.Mutex
	wakeFd int
}

// NewPoller returns a poll(2) based Poller with an eventfd wake signal.
func NewPoller() (Poller, error) {
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("create eventfd: %w", err)
	}

	return &eventfdPoller{wakeFd: wakeFd}, nil
}

func (p *eventfdPoller) Wait(fd int) error {
	if fd < 0 {
		return fmt.Errorf("poll descriptor %d: invalid descriptor", fd)
	}
	wakeFd := p.currentWakeFd()
	if wakeFd < 0 {
		return ErrWoken
	}

	fds := []unix.PollFd{
		{Fd: int32(fd), Events: unix.POLLIN},     // #nosec G115 -- fd is a kernel descriptor.
		{Fd: int32(wakeFd), Events: unix.POLLIN}, // #nosec G115 -- fd is a kernel descriptor.
	}
	for {
		fds[0].Revents = 0
		fds[1].Revents = 0
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll descriptor %d: %w", fd, err)
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			return ErrWoken
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return fmt.Errorf("poll descriptor %d: descriptor is not open", fd)
		}
		// POLLHUP and POLLERR are reported as readable: the following read surfaces the error.
		if fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			return nil
		}
	}
}

func (p *eventfdPoller) Wake() error {
	wakeFd := p.currentWakeFd()
	if wakeFd < 0 {
		return nil
	}
	var one = [8]byte{1}
	if _, err := unix.Write(wakeFd, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("signal eventfd: %w", err)
	}

	return nil
}

func (p *eventfdPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wakeFd < 0 {
		return nil
	}
	err := unix.Close(p.wakeFd)
	p.wakeFd = -1
	if err != nil {
		return fmt.Errorf("close eventfd: %w", err)
	}

	return nil
}

func (p *eventfdPoller) currentWakeFd() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.wakeFd
}
