//go:build !linux

package transport

// isLandlockAvailable is Linux-specific; other platforms have no Landlock.
func isLandlockAvailable() bool {
	return false
}
