package provisioning

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cams3/camnode/pkg/clock"
	"github.com/cams3/camnode/pkg/wifi"
)

// sharedRadio mimics NetworkManager driving one wifi interface that serves
// both the fallback hotspot and the station link. At most one profile is
// active at a time.
type sharedRadio struct {
	mu       sync.Mutex
	active   string
	ups      int
	joinGate chan struct{}
	joined   chan struct{}
}

func (r *sharedRadio) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	cmd := strings.Join(args, " ")

	if strings.Contains(cmd, "wifi connect") {
		<-r.joinGate
		r.mu.Lock()
		r.active = ""
		r.mu.Unlock()
		r.joined <- struct{}{}
		return nil, errors.New("secrets were required, but not provided")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case strings.Contains(cmd, "connection up"):
		r.active = wifi.DefaultAPConnection
		r.ups++
	case strings.Contains(cmd, "connection down"):
		r.active = ""
	case strings.Contains(cmd, "connection show"):
		if r.active == wifi.DefaultAPConnection {
			return []byte("GENERAL.STATE:activated\n"), nil
		}
		return nil, nil
	case strings.Contains(cmd, "device show"):
		if r.active == "" {
			return []byte("GENERAL.STATE:30 (disconnected)\nGENERAL.CONNECTION:\n"), nil
		}
		return []byte("GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:" + r.active + "\n"), nil
	}
	return nil, nil
}

func (r *sharedRadio) snapshot() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.ups
}

func TestFailedSwitchOnSharedRadioRestoresFallback(t *testing.T) {
	radio := &sharedRadio{joinGate: make(chan struct{}), joined: make(chan struct{}, 1)}
	fc := clock.NewFake(time.Unix(1000, 0))

	ap := wifi.NewAccessPoint(radio, wifi.APConfig{Interface: "wlan0"})
	link := wifi.NewLink(radio, wifi.LinkConfig{
		Interface: "wlan0",
		Clock:     fc,
		APActive:  ap.Running,
	})
	defer link.Close()

	ctrl := New(link, &fakeStore{}, ap, &fakePortal{}, Options{
		HardwareAddr: "AA:BB:CC:DD:EE:FF",
		Clock:        fc,
	})
	if err := ctrl.Begin(); err != nil {
		t.Fatal(err)
	}
	assertState(t, ctrl, StateBroadcastingFallback)
	if active, _ := radio.snapshot(); active != wifi.DefaultAPConnection {
		t.Fatalf("expected the hotspot to be up, radio has %q", active)
	}

	if err := ctrl.SaveAndConnect("Home", "wrongpw"); err != nil {
		t.Fatal(err)
	}

	// The join is still in flight and the hotspot still owns the radio.
	if err := link.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctrl.Tick()
	assertState(t, ctrl, StateSwitchingToHome)

	close(radio.joinGate)
	<-radio.joined

	fc.Advance(DefaultSwitchTimeout / 2)
	if err := link.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctrl.Tick()
	assertState(t, ctrl, StateSwitchingToHome)

	fc.Advance(DefaultSwitchTimeout)
	if err := link.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctrl.Tick()
	assertState(t, ctrl, StateBroadcastingFallback)

	active, ups := radio.snapshot()
	if active != wifi.DefaultAPConnection {
		t.Fatalf("fallback state without a hotspot, radio has %q", active)
	}
	if ups != 2 {
		t.Fatalf("expected the hotspot to be brought up again, got %d activations", ups)
	}
}
