package monitoring

import "errors"

var (
	// ErrMonitoringNotFound is returned when a monitoring code does not exist.
	ErrMonitoringNotFound = errors.New("monitoring: not found")

	// ErrInvalidMonitoring is returned when a request fails validation.
	ErrInvalidMonitoring = errors.New("monitoring: invalid")

	// ErrEmptyBatch is returned when a batch operation names nothing.
	ErrEmptyBatch = errors.New("monitoring: empty batch")
)
