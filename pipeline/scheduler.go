package pipeline

import (
	"sync"
	"time"
)

// timerScheduler satisfies the loop's task-processing requests with a
// one-shot timer. Requests may be coalesced: a cancel followed by a new
// request reuses a fresh timer.
type timerScheduler struct {
	time TimeProvider

	mu    sync.Mutex
	timer *time.Timer
}

func newTimerScheduler(tp TimeProvider) *timerScheduler {
	return &timerScheduler{time: tp}
}

func (s *timerScheduler) ScheduleTaskProcessing(loop *Loop, deadline int64) {
	var delay time.Duration
	if deadline != 0 {
		if d := time.Duration(deadline - s.time.Now().UnixNano()); d > 0 {
			delay = d
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.time.AfterFunc(delay, loop.ProcessTasks)
}

func (s *timerScheduler) CancelTaskProcessing(loop *Loop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *timerScheduler) stop() {
	s.CancelTaskProcessing(nil)
}
