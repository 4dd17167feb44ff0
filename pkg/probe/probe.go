// Package probe defines the boundary to the OS-level activity queries:
// which process owns the foreground window, how long the user has been
// idle, and which processes are running. Everything above this interface
// is platform independent.
package probe

// Probe is the interface all platform implementations must satisfy.
type Probe interface {
	// ActiveProcessName returns the lower-cased name of the process that
	// owns the foreground window, or "" if there is no foreground window.
	// It never blocks longer than the underlying OS call.
	ActiveProcessName() (string, error)

	// IdleSeconds returns the OS-wide time since the last user input,
	// in seconds.
	IdleSeconds() (float64, error)

	// RunningProcesses returns the sorted, de-duplicated, lower-cased
	// names of all running processes.
	RunningProcesses() ([]string, error)

	// Close releases any resources held by the probe.
	Close() error
}
