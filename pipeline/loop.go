package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
)

const loopStatsInterval = time.Minute

// Task is one unit of administrative work submitted to a Loop. It is
// executed exactly once inside the processing lock; its completer is
// invoked exactly once, after the result is recorded.
type Task struct {
	fn        func() error
	completer func(*Task)
	err       error
	done      chan struct{}
}

// Err returns the task result. Valid only after the completer ran.
func (t *Task) Err() error {
	return t.err
}

// FrameProcessor handles one sub-frame of audio under the processing
// lock. Receivers fill the frame, senders consume it.
type FrameProcessor interface {
	ProcessSubframe(frame *audio.Frame) error
}

// TaskScheduler is the loop's hook into an external timer: the loop asks
// it to call ProcessTasks once, no earlier than the given deadline (Unix
// nanoseconds, zero meaning as soon as possible), or to coalesce a
// previous request.
type TaskScheduler interface {
	ScheduleTaskProcessing(loop *Loop, deadline int64)
	CancelTaskProcessing(loop *Loop)
}

// LoopStats counts how tasks were interleaved with frames.
type LoopStats struct {
	TasksProcessed   uint64
	ProcessedInPlace uint64
	ProcessedInFrame uint64
	ProcessedInProc  uint64
	Preemptions      uint64

	SchedulerCalls         uint64
	SchedulerCancellations uint64
}

// Loop interleaves real-time frame processing with administrative tasks
// submitted from arbitrary goroutines.
//
// Frames and tasks are serialized on a single processing lock; the frame
// path blocks on it only against task execution, never against other
// frames. Tasks run in the caller when there is enough slack before the
// next frame deadline, between sub-frames of a running frame within a
// strict time budget, or from an external timer callback otherwise. A
// guard interval centered on each frame deadline keeps task execution
// away from the moments the real-time thread is expected back.
type Loop struct {
	config    LoopConfig
	spec      audio.SampleSpec
	processor FrameProcessor
	scheduler TaskScheduler
	time      TimeProvider

	minSamplesBetweenTasks int
	maxSamplesBetweenTasks int
	halfGap                int64

	procMu  sync.Mutex
	schedMu sync.Mutex

	procScheduled bool

	pendingTasks  atomic.Int64
	pendingFrames atomic.Int64
	closed        atomic.Bool

	// nextFrameDeadline is the predicted Unix-nanosecond start of the
	// next frame, zero until the first frame was processed.
	nextFrameDeadline atomic.Int64

	queueMu   sync.Mutex
	taskQueue []*Task

	// guarded by procMu
	subframeTasksDeadline int64
	samplesProcessed      int
	enoughSamples         bool
	lastStatsReport       time.Time

	stats struct {
		tasksProcessed   atomic.Uint64
		processedInPlace atomic.Uint64
		processedInFrame atomic.Uint64
		processedInProc  atomic.Uint64
		preemptions      atomic.Uint64
		schedulerCalls   atomic.Uint64
		schedulerCancels atomic.Uint64
	}
}

// NewLoop creates a loop processing frames of the given spec through
// processor. tp may be nil, selecting the system clock.
func NewLoop(config LoopConfig, spec audio.SampleSpec, processor FrameProcessor, scheduler TaskScheduler, tp TimeProvider) (*Loop, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tp == nil {
		tp = RealTimeProvider{}
	}

	minSamples, err := spec.DurationToSamplesOverall(config.MinFrameLengthBetweenTasks)
	if err != nil {
		return nil, err
	}
	maxSamples, err := spec.DurationToSamplesOverall(config.MaxFrameLengthBetweenTasks)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		config:                 config,
		spec:                   spec,
		processor:              processor,
		scheduler:              scheduler,
		time:                   tp,
		minSamplesBetweenTasks: int(minSamples),
		maxSamplesBetweenTasks: int(maxSamples),
		halfGap:                int64(config.TaskProcessingProhibitedInterval) / 2,
		lastStatsReport:        tp.Now(),
	}
	logrus.WithFields(logrus.Fields{
		"spec":               spec.String(),
		"min_subframe":       config.MinFrameLengthBetweenTasks,
		"max_subframe":       config.MaxFrameLengthBetweenTasks,
		"inframe_budget":     config.MaxInframeTaskProcessing,
		"guard_interval":     config.TaskProcessingProhibitedInterval,
		"precise_scheduling": config.EnablePreciseTaskScheduling,
	}).Info("pipeline loop: created")
	return l, nil
}

// Stats returns a snapshot of the scheduling counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		TasksProcessed:         l.stats.tasksProcessed.Load(),
		ProcessedInPlace:       l.stats.processedInPlace.Load(),
		ProcessedInFrame:       l.stats.processedInFrame.Load(),
		ProcessedInProc:        l.stats.processedInProc.Load(),
		Preemptions:            l.stats.preemptions.Load(),
		SchedulerCalls:         l.stats.schedulerCalls.Load(),
		SchedulerCancellations: l.stats.schedulerCancels.Load(),
	}
}

// NumPendingTasks returns the number of scheduled but unfinished tasks.
func (l *Loop) NumPendingTasks() int {
	return int(l.pendingTasks.Load())
}

// Close marks the loop closed. Frames and tasks submitted afterwards fail
// with ErrLoopClosed; tasks already queued still complete via
// ProcessTasks.
func (l *Loop) Close() {
	l.closed.Store(true)
}

// Schedule submits fn for execution inside the processing lock. The
// completer is invoked exactly once, on an unspecified goroutine, after
// fn ran; the task result is available through Task.Err. A completer may
// itself call Schedule.
func (l *Loop) Schedule(fn func() error, completer func(*Task)) {
	task := &Task{fn: fn, completer: completer}
	if l.closed.Load() {
		task.err = ErrLoopClosed
		if completer != nil {
			completer(task)
		}
		return
	}
	l.scheduleAndMaybeProcess(task)
}

// ScheduleAndWait submits fn and blocks until it ran, returning its
// error. Must not be called from the processing goroutine.
func (l *Loop) ScheduleAndWait(fn func() error) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	task := &Task{fn: fn, done: make(chan struct{})}
	task.completer = func(t *Task) { close(t.done) }
	l.scheduleAndMaybeProcess(task)
	<-task.done
	return task.err
}

// scheduleAndMaybeProcess runs the task in the caller when the queue is
// empty, the frame deadline is far enough, and the processing lock is
// free; otherwise it enqueues the task and makes sure a timer is armed.
// Reports whether the task ran in place.
func (l *Loop) scheduleAndMaybeProcess(task *Task) bool {
	if l.pendingTasks.Add(1) != 1 {
		l.enqueueTask(task)
		return false
	}

	deadline := l.nextFrameDeadline.Load()

	if !l.interframeTaskProcessingAllowed(deadline) {
		l.enqueueTask(task)
		if l.pendingFrames.Load() == 0 {
			l.scheduleAsyncTaskProcessing()
		}
		return false
	}

	if !l.procMu.TryLock() {
		l.enqueueTask(task)
		return false
	}

	l.processTask(task)
	l.pendingTasks.Add(-1)
	l.stats.tasksProcessed.Add(1)
	l.stats.processedInPlace.Add(1)

	framesPending := l.pendingFrames.Load()
	if framesPending != 0 {
		l.stats.preemptions.Add(1)
	}

	l.procMu.Unlock()

	if framesPending == 0 && l.pendingTasks.Load() != 0 {
		l.scheduleAsyncTaskProcessing()
	}
	return true
}

// ProcessTasks drains queued tasks outside of frame processing. Called
// by the task scheduler when a requested deadline expires; also safe to
// call directly when the loop is not clocked by frames.
func (l *Loop) ProcessTasks() {
	needReschedule := l.maybeProcessTasks()

	l.schedMu.Lock()
	l.procScheduled = false
	l.schedMu.Unlock()

	if needReschedule {
		l.scheduleAsyncTaskProcessing()
	}
}

func (l *Loop) maybeProcessTasks() bool {
	deadline := l.nextFrameDeadline.Load()

	if !l.procMu.TryLock() {
		return false
	}

	var framesPending int64
	for {
		if !l.interframeTaskProcessingAllowed(deadline) {
			break
		}
		if framesPending = l.pendingFrames.Load(); framesPending != 0 {
			break
		}
		task := l.dequeueTask()
		if task == nil {
			break
		}
		l.processTask(task)
		l.pendingTasks.Add(-1)
		l.stats.tasksProcessed.Add(1)
		l.stats.processedInProc.Add(1)
	}

	if framesPending != 0 {
		l.stats.preemptions.Add(1)
	}

	l.procMu.Unlock()

	return framesPending == 0 && l.pendingTasks.Load() != 0
}

// ProcessSubframesAndTasks runs one frame through the processor, split
// into sub-frames, draining queued tasks between sub-frames within the
// configured budget. Called from the real-time goroutine.
func (l *Loop) ProcessSubframesAndTasks(frame *audio.Frame) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if l.config.EnablePreciseTaskScheduling {
		return l.processPrecise(frame)
	}
	return l.processSimple(frame)
}

func (l *Loop) processSimple(frame *audio.Frame) error {
	l.pendingFrames.Add(1)

	l.cancelAsyncTaskProcessing()

	l.procMu.Lock()
	err := l.processor.ProcessSubframe(frame)
	l.procMu.Unlock()

	if l.pendingFrames.Add(-1) == 0 && l.pendingTasks.Load() != 0 {
		l.scheduleAsyncTaskProcessing()
	}
	return err
}

func (l *Loop) processPrecise(frame *audio.Frame) error {
	l.pendingFrames.Add(1)

	frameStart := l.time.Now().UnixNano()

	l.cancelAsyncTaskProcessing()

	l.procMu.Lock()

	var (
		deadline int64
		pos      int
		err      error
	)
	flags := frame.Flags()

	for {
		firstIteration := pos == 0

		var subFlags audio.FrameFlags
		subFlags, err = l.processSubframe(frame, &pos)
		flags |= subFlags

		if firstIteration {
			deadline = l.updateFrameDeadline(frameStart, len(frame.Samples()))
		}

		if l.startSubframeTaskProcessing() {
			for {
				task := l.dequeueTask()
				if task == nil {
					break
				}
				l.processTask(task)
				l.pendingTasks.Add(-1)
				l.stats.tasksProcessed.Add(1)
				l.stats.processedInFrame.Add(1)

				if !l.subframeTaskProcessingAllowed(deadline) {
					break
				}
			}
		}

		if err != nil || pos == len(frame.Samples()) {
			break
		}
	}

	frame.SetFlags(flags)

	l.reportStats()

	l.procMu.Unlock()

	if l.pendingFrames.Add(-1) == 0 && l.pendingTasks.Load() != 0 {
		l.scheduleAsyncTaskProcessing()
	}
	return err
}

// processSubframe runs the next sub-frame slice through the processor
// and advances the task-budget accounting. Returns the sub-frame's
// resulting flags so the caller can accumulate the union.
func (l *Loop) processSubframe(frame *audio.Frame, pos *int) (audio.FrameFlags, error) {
	total := len(frame.Samples())
	size := total - *pos
	if l.maxSamplesBetweenTasks > 0 && size > l.maxSamplesBetweenTasks {
		size = l.maxSamplesBetweenTasks
	}

	sub := audio.NewFrame(frame.Samples()[*pos : *pos+size])
	sub.SetFlags(frame.Flags())
	if cts := frame.CaptureTimestamp(); cts != 0 {
		offset, err := l.spec.SamplesOverallToDuration(int64(*pos))
		if err == nil {
			sub.SetCaptureTimestamp(cts + int64(offset))
		}
	}

	err := l.processor.ProcessSubframe(sub)

	if *pos == 0 && frame.CaptureTimestamp() == 0 {
		frame.SetCaptureTimestamp(sub.CaptureTimestamp())
	}

	l.subframeTasksDeadline = l.time.Now().UnixNano() + int64(l.config.MaxInframeTaskProcessing)

	*pos += size

	if !l.enoughSamples {
		l.samplesProcessed += size
		if l.samplesProcessed >= l.minSamplesBetweenTasks {
			l.enoughSamples = true
		}
	}

	return sub.Flags(), err
}

func (l *Loop) startSubframeTaskProcessing() bool {
	if l.pendingTasks.Load() == 0 {
		return false
	}
	if !l.enoughSamples {
		return false
	}
	l.enoughSamples = false
	l.samplesProcessed = 0
	return true
}

func (l *Loop) subframeTaskProcessingAllowed(deadline int64) bool {
	now := l.time.Now().UnixNano()
	if now >= l.subframeTasksDeadline {
		return false
	}
	if deadline != 0 && now >= deadline-l.halfGap {
		return false
	}
	return true
}

// updateFrameDeadline re-anchors the predicted start of the next frame
// from the observed start and length of the current one.
func (l *Loop) updateFrameDeadline(frameStart int64, frameSize int) int64 {
	duration, err := l.spec.SamplesOverallToDuration(int64(frameSize))
	if err != nil {
		return l.nextFrameDeadline.Load()
	}
	deadline := frameStart + int64(duration)
	l.nextFrameDeadline.Store(deadline)
	return deadline
}

// interframeTaskProcessingAllowed reports whether a task may run right
// now without risking a collision with the real-time goroutine: either
// precise scheduling is off, no frame was ever processed, or the current
// time is outside the guard interval around the next frame deadline.
func (l *Loop) interframeTaskProcessingAllowed(deadline int64) bool {
	if !l.config.EnablePreciseTaskScheduling {
		return true
	}
	if deadline == 0 {
		return true
	}
	now := l.time.Now().UnixNano()
	return now < deadline-l.halfGap || now >= deadline+l.halfGap
}

func (l *Loop) scheduleAsyncTaskProcessing() {
	deadline := l.nextFrameDeadline.Load()

	if !l.schedMu.TryLock() {
		return
	}
	if !l.procScheduled {
		var procDeadline int64
		if l.config.EnablePreciseTaskScheduling && deadline != 0 {
			now := l.time.Now().UnixNano()
			if now >= deadline-l.halfGap && now < deadline+l.halfGap {
				procDeadline = deadline + l.halfGap
			}
		}
		l.scheduler.ScheduleTaskProcessing(l, procDeadline)
		l.stats.schedulerCalls.Add(1)
		l.procScheduled = true
	}
	l.schedMu.Unlock()

	if l.pendingFrames.Load() != 0 {
		l.cancelAsyncTaskProcessing()
	}
}

func (l *Loop) cancelAsyncTaskProcessing() {
	if !l.schedMu.TryLock() {
		return
	}
	if l.procScheduled {
		l.scheduler.CancelTaskProcessing(l)
		l.stats.schedulerCancels.Add(1)
		l.procScheduled = false
	}
	l.schedMu.Unlock()
}

// processTask runs the task and its completer under the processing lock.
func (l *Loop) processTask(task *Task) {
	task.err = task.fn()
	if task.completer != nil {
		task.completer(task)
	}
}

func (l *Loop) enqueueTask(task *Task) {
	l.queueMu.Lock()
	l.taskQueue = append(l.taskQueue, task)
	l.queueMu.Unlock()
}

func (l *Loop) dequeueTask() *Task {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	if len(l.taskQueue) == 0 {
		return nil
	}
	task := l.taskQueue[0]
	l.taskQueue = l.taskQueue[1:]
	return task
}

// reportStats emits a rate-limited scheduling summary. Called under the
// processing lock.
func (l *Loop) reportStats() {
	now := l.time.Now()
	if now.Sub(l.lastStatsReport) < loopStatsInterval {
		return
	}
	l.lastStatsReport = now

	s := l.Stats()
	logrus.WithFields(logrus.Fields{
		"tasks":       s.TasksProcessed,
		"in_place":    s.ProcessedInPlace,
		"in_frame":    s.ProcessedInFrame,
		"in_proc":     s.ProcessedInProc,
		"preemptions": s.Preemptions,
		"sched_calls": s.SchedulerCalls,
		"sched_cxl":   s.SchedulerCancellations,
	}).Debug("pipeline loop: stats")
}
