//go:build !windows

package main

import "log/slog"

// VerifyXUSBBinding is a no-op off Windows: SetupAPI driver-binding
// verification is meaningless without the Windows driver store.
func VerifyXUSBBinding(logger *slog.Logger) (bool, error) {
	logger.Debug("winverify: skipped, not running on Windows")
	return false, nil
}
