//go:build linux

package transport

import (
	"errors"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/nox-kernel/central/internal/store"
)

// isLandlockAvailable probes whether the kernel supports Landlock, so the
// process transport can warn before spawning a local runner without
// filesystem confinement.
func isLandlockAvailable() bool {
	abi, _, errno := unix.Syscall(
		unix.SYS_LANDLOCK_CREATE_RULESET,
		0,
		0,
		uintptr(unix.LANDLOCK_CREATE_RULESET_VERSION),
	)
	if errno == 0 && abi >= 1 {
		return true
	}
	if errors.Is(errno, unix.ENOSYS) || errors.Is(errno, unix.EOPNOTSUPP) {
		return false
	}

	lsmRaw, err := store.ReadFile("/sys/kernel/security/lsm")
	if err != nil {
		return false
	}
	for _, item := range strings.Split(strings.TrimSpace(lsmRaw), ",") {
		if strings.TrimSpace(item) == "landlock" {
			return true
		}
	}
	return false
}
