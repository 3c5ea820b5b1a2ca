//go:build !unix

package platform

import (
	"fmt"
	"runtime"
)

func acquireModemLock(_, _ string) (ModemLock, error) {
	return nil, fmt.Errorf("%w on %s", ErrModemLockUnsupported, runtime.GOOS)
}
