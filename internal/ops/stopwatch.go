package ops

import "time"

// Stopwatch measures one task. The zero value is stopped.
type Stopwatch struct {
	start   time.Time
	elapsed time.Duration
	running bool
}

// StartStopwatch returns a running stopwatch.
func StartStopwatch() *Stopwatch {
	sw := &Stopwatch{}
	sw.Start()
	return sw
}

// Start resumes the stopwatch. Starting a running stopwatch is a no-op.
func (s *Stopwatch) Start() {
	if s.running {
		return
	}
	s.start = time.Now()
	s.running = true
}

// Stop pauses the stopwatch and returns the total elapsed time.
func (s *Stopwatch) Stop() time.Duration {
	if s.running {
		s.elapsed += time.Since(s.start)
		s.running = false
	}
	return s.elapsed
}

// Elapsed returns the total time the stopwatch has been running.
func (s *Stopwatch) Elapsed() time.Duration {
	if s.running {
		return s.elapsed + time.Since(s.start)
	}
	return s.elapsed
}
