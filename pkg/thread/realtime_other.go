//go:build !linux

package thread

func lockMemory() error {
	return ErrRealTimeUnsupported
}

func setScheduler(Policy, int) error {
	return ErrRealTimeUnsupported
}
