package scheduler

import "errors"

// ErrJobRunning is returned by RunNow when the job is already in flight.
var ErrJobRunning = errors.New("job already running")
