package receipt

import "time"

func (s *Sequencer) SetClock(now func() time.Time) {
	s.now = now
}

func (svc *Service) SetClock(now func() time.Time) {
	svc.sequencer.now = now
}
