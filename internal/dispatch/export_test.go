package dispatch

import "time"

// SetClock pins the service clock for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.loc.now = now
}

// SetIDFunc pins ID generation for tests.
func (s *Service) SetIDFunc(f func() string) {
	s.newID = f
}
