package transport

import (
	"context"
	"os"
	"sync"
)

// FileTransport adopts an already open descriptor, such as one end of a
// socketpair handed over by a modem multiplexer.
type FileTransport struct {
	name string

	mu   sync.Mutex
	file *os.File
	fd   int
}

// NewFileTransport takes ownership of file; Close closes it.
func NewFileTransport(name string, file *os.File) *FileTransport {
	return &FileTransport{name: name, file: file, fd: InvalidFd}
}

func (t *FileTransport) Name() string {
	return t.name
}

func (t *FileTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.file == nil {
		return ErrNotConnected
	}
	t.fd = int(t.file.Fd()) // #nosec G115 -- kernel descriptors fit in int.
	transportLogger(t.name).Debug("adopted descriptor", "fd", t.fd)

	return nil
}

func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	t.fd = InvalidFd

	return err
}

func (t *FileTransport) Read(p []byte) (int, error) {
	f, err := t.current()
	if err != nil {
		return 0, err
	}

	return f.Read(p)
}

func (t *FileTransport) Write(p []byte) (int, error) {
	f, err := t.current()
	if err != nil {
		return 0, err
	}

	return f.Write(p)
}

func (t *FileTransport) Fd() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.fd
}

func (t *FileTransport) current() (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil || t.fd == InvalidFd {
		return nil, ErrNotConnected
	}

	return t.file, nil
}
