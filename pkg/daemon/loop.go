package daemon

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cams3/camnode/pkg/events"
	"github.com/cams3/camnode/pkg/metrics"
	"github.com/cams3/camnode/pkg/motion"
	"github.com/cams3/camnode/pkg/notify"
	"github.com/cams3/camnode/pkg/provisioning"
)

const (
	linkUpdateInterval = time.Second
	captureTimeout     = 5 * time.Second
)

// every calls fn once per interval until ctx is done. Ticks missed while
// fn runs are dropped.
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (s *server) provisioningLoop(ctx context.Context) {
	logrus.WithField("interval", s.conf.ProvisioningTick().String()).Debug("provisioning loop starts")
	every(ctx, s.conf.ProvisioningTick(), s.controller.Tick)
}

func (s *server) linkLoop(ctx context.Context) {
	every(ctx, linkUpdateInterval, func() {
		if err := s.link.Update(ctx); err != nil {
			logrus.WithError(err).Debug("failed to update wifi link")
		}
	})
}

func (s *server) captureLoop(ctx context.Context) {
	logrus.WithField("interval", s.conf.MotionCheckInterval().String()).Debug("capture loop starts")

	failures := 0
	every(ctx, s.conf.MotionCheckInterval(), func() {
		cctx, cancel := context.WithTimeout(ctx, captureTimeout)
		defer cancel()

		f, err := s.source.Capture(cctx)
		if err != nil {
			metrics.RecordCaptureError()
			failures++
			entry := logrus.WithError(err).WithField("failures", failures)
			if failures == 1 {
				entry.Warn("frame capture failed")
			} else {
				entry.Debug("frame capture failed")
			}
			return
		}
		if failures > 0 {
			logrus.WithField("failures", failures).Info("frame capture recovered")
			failures = 0
		}
		s.processFrame(f)
	})
}

// processFrame runs f through the engine and reports motion edges.
func (s *server) processFrame(f *motion.Frame) {
	s.setLastFrame(f)

	detected := s.engine.Detect(f)
	res := s.engine.Snapshot()
	metrics.RecordFrame(res.ChangedCells, detected)

	if detected == s.motionActive {
		return
	}
	s.motionActive = detected

	now := s.clock.Now()
	logrus.WithFields(logrus.Fields{
		"motion":       detected,
		"changedCells": res.ChangedCells,
	}).Info("motion state changed")

	ev := events.MotionEvent{
		Motion:       detected,
		ChangedCells: res.ChangedCells,
		Ts:           now.Unix(),
	}
	if !detected {
		s.hub.Publish(events.Motion, ev)
		return
	}

	n := notify.NewMotionEvent(s.conf.DeviceName(), res.ChangedCells, now)
	ev.ID = n.ID
	s.hub.Publish(events.Motion, ev)

	s.notifyWg.Add(1)
	go func() {
		defer s.notifyWg.Done()
		err := s.notifier.Publish(n)
		metrics.RecordNotification(err == nil)
		if err != nil {
			logrus.WithError(err).WithField("id", n.ID).Warn("failed to publish motion event")
		}
	}()
}

// onTransition is called by the controller with its lock held.
func (s *server) onTransition(t provisioning.Transition) {
	metrics.RecordTransition(string(t.From), string(t.To))
	metrics.SetProvisioningState(string(t.To), stateNames())

	s.hub.Publish(events.ProvisioningState, events.ProvisioningStateEvent{
		From:   string(t.From),
		To:     string(t.To),
		Reason: t.Reason,
		Ts:     t.At.Unix(),
	})
}

func stateNames() []string {
	names := make([]string, 0, len(provisioning.AllStates))
	for _, st := range provisioning.AllStates {
		names = append(names, string(st))
	}
	return names
}
