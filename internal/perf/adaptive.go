package perf

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
)

// Stress thresholds.
const (
	MaxLoad        = 1.5
	MaxTemperature = 70.0
)

// fpsStep is how much one adjustment moves the frame rate.
const fpsStep = 2

// Target is the frame-rate knob being driven, typically a capture.Worker.
type Target interface {
	SetFPS(fps int)
	GetFPS() int
	GetMaxFPS() int
	Running() bool
}

// Sampler provides system readings.
type Sampler interface {
	Sample() (Sample, error)
}

// AdaptiveController lowers the target's frame rate while the system is
// stressed and restores it once the system has recovered.
type AdaptiveController struct {
	sampler  Sampler
	target   Target
	interval time.Duration
	log      logging.LeveledLogger

	mu            sync.Mutex
	stressed      bool
	stressCount   int
	recoveryCount int

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewAdaptiveController creates a controller sampling every interval.
func NewAdaptiveController(target Target, sampler Sampler, interval time.Duration, log logging.LeveledLogger) *AdaptiveController {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &AdaptiveController{
		sampler:  sampler,
		target:   target,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the adaptation loop.
func (ac *AdaptiveController) Start() {
	if ac.started.CompareAndSwap(false, true) {
		go ac.loop()
	}
}

// Stop ends the loop and waits for it.
func (ac *AdaptiveController) Stop() {
	ac.stopOnce.Do(func() { close(ac.stopCh) })
	if ac.started.Load() {
		<-ac.done
	}
}

func (ac *AdaptiveController) loop() {
	defer close(ac.done)
	ticker := time.NewTicker(ac.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ac.stopCh:
			return
		case <-ticker.C:
		}
		if !ac.target.Running() {
			ac.reset()
			continue
		}
		s, err := ac.sampler.Sample()
		if err != nil {
			ac.log.Debugf("sample: %v", err)
			continue
		}
		ac.adjust(s)
	}
}

func (ac *AdaptiveController) reset() {
	ac.mu.Lock()
	ac.stressed = false
	ac.stressCount = 0
	ac.recoveryCount = 0
	ac.mu.Unlock()
}

// adjust applies one reading. Entering stress lowers the rate at once;
// prolonged stress keeps lowering it; the rate only climbs back after
// three calm readings in a row.
func (ac *AdaptiveController) adjust(s Sample) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	now := s.Load > MaxLoad || s.Temperature > MaxTemperature
	switch {
	case now && !ac.stressed:
		ac.stressed = true
		ac.stressCount = 1
		ac.recoveryCount = 0
		ac.step(-fpsStep, s)
	case now:
		ac.stressCount++
		ac.recoveryCount = 0
		if ac.stressCount > 3 {
			ac.step(-fpsStep, s)
		}
	case ac.stressed:
		ac.recoveryCount++
		if ac.recoveryCount > 2 {
			ac.stressed = false
			ac.stressCount = 0
			ac.recoveryCount = 0
			ac.step(fpsStep, s)
		}
	default:
		if ac.target.GetFPS() < ac.target.GetMaxFPS() {
			ac.step(fpsStep, s)
		}
	}
}

func (ac *AdaptiveController) step(delta int, s Sample) {
	old := ac.target.GetFPS()
	ac.target.SetFPS(old + delta)
	if fps := ac.target.GetFPS(); fps != old {
		ac.log.Infof("fps %d -> %d (load %.2f, %.1f°C)", old, fps, s.Load, s.Temperature)
	}
}

// Stressed reports whether the last reading left the controller in the
// stressed state.
func (ac *AdaptiveController) Stressed() bool {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.stressed
}
