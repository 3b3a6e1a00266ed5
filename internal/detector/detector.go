package detector

// Detector is a strategy that determines if a process is running.
// Implementations query the operating system directly and never consult an
// exec.Cmd handle. It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the process is detected as running. A non-nil
	// error means the detection mechanism itself was unavailable.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// First asks each detector in turn and returns the first answer that was
// produced without error. When every detector fails, the last error is
// returned so callers can fall back to their own liveness source.
func First(dets ...Detector) (bool, string, error) {
	var lastErr error
	for _, d := range dets {
		ok, err := d.Alive()
		if err != nil {
			lastErr = err
			continue
		}
		return ok, d.Describe(), nil
	}
	return false, "", lastErr
}
