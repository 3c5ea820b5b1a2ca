//go:build !linux

package transport

func NewPoller() (Poller, error) {
	return nil, ErrPollUnsupported
}
