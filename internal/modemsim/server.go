package modemsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
)

// Listen binds the FMT and RFS unix sockets. Stale socket files are removed.
func Listen(fmtPath, rfsPath string) (fmtLn, rfsLn net.Listener, err error) {
	fmtLn, err = listenUnix(fmtPath)
	if err != nil {
		return nil, nil, err
	}
	rfsLn, err = listenUnix(rfsPath)
	if err != nil {
		_ = fmtLn.Close()
		return nil, nil, err
	}
	return fmtLn, rfsLn, nil
}

func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	return ln, nil
}

// Serve accepts one host connection at a time on each listener until ctx
// ends. A dropped host may reconnect.
func (m *Modem) Serve(ctx context.Context, fmtLn, rfsLn net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = fmtLn.Close()
		_ = rfsLn.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	serve := func(i int, ln net.Listener, handle func(context.Context, io.ReadWriteCloser) error) {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil {
					errs[i] = fmt.Errorf("accept on %s: %w", ln.Addr(), err)
				}
				return
			}
			m.logger.Info("host connected", "addr", ln.Addr().String())
			if err := handle(ctx, conn); err != nil && ctx.Err() == nil {
				m.logger.Warn("host connection ended", "addr", ln.Addr().String(), "error", err)
			}
			_ = conn.Close()
		}
	}

	wg.Add(2)
	go serve(0, fmtLn, m.ServeFMT)
	go serve(1, rfsLn, m.ServeRFS)
	wg.Wait()

	return errors.Join(errs...)
}
