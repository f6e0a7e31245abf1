package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/cams3/camnode/pkg/clock"
	"github.com/cams3/camnode/pkg/config"
	"github.com/cams3/camnode/pkg/events"
	"github.com/cams3/camnode/pkg/frame"
	"github.com/cams3/camnode/pkg/motion"
	"github.com/cams3/camnode/pkg/notify"
	"github.com/cams3/camnode/pkg/provisioning"
	"github.com/cams3/camnode/pkg/wifi"
)

// scanner lists nearby networks for the provisioning page.
type scanner interface {
	Scan(ctx context.Context) ([]wifi.NetworkInfo, error)
}

// linkUpdater refreshes the station link and retries the last network.
type linkUpdater interface {
	Update(ctx context.Context) error
}

// server holds everything the HTTP handlers and background loops share.
type server struct {
	conf       config.Config
	controller *provisioning.Controller
	engine     *motion.Engine
	source     frame.Source
	scanner    scanner
	link       linkUpdater
	hub        *events.EventHub
	notifier   notify.Notifier
	clock      clock.Clock
	startedAt  time.Time

	frameMu   sync.RWMutex
	lastFrame *motion.Frame
	frameSeq  uint64

	// motionActive is only touched by the capture loop.
	motionActive bool

	notifyWg sync.WaitGroup

	// restartc receives one value when the process must restart.
	restartc chan struct{}
}

func newServer(conf config.Config, hub *events.EventHub, clk clock.Clock) *server {
	if clk == nil {
		clk = clock.Real{}
	}
	if hub == nil {
		hub = events.NewEventHub()
	}
	return &server{
		conf:      conf,
		engine:    motion.NewEngine(motion.Config{Threshold: conf.MotionThreshold(), TriggerCount: conf.MotionTriggerCount()}),
		hub:       hub,
		notifier:  notify.Nop{},
		clock:     clk,
		startedAt: clk.Now(),
		restartc:  make(chan struct{}, 1),
	}
}

// requestRestart asks Run to restart the process. Repeated requests
// collapse into one.
func (s *server) requestRestart() {
	select {
	case s.restartc <- struct{}{}:
	default:
	}
}

func (s *server) setLastFrame(f *motion.Frame) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.lastFrame = f
	s.frameSeq++
}

// latestFrame returns the most recent frame and its sequence number. The
// frame must not be modified.
func (s *server) latestFrame() (*motion.Frame, uint64) {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.lastFrame, s.frameSeq
}

// applyMotionConfig pushes the configured thresholds into the engine.
func (s *server) applyMotionConfig() {
	s.engine.SetThreshold(s.conf.MotionThreshold())
	s.engine.SetTriggerCount(s.conf.MotionTriggerCount())
}
