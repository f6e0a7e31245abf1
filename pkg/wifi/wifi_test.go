package wifi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cams3/camnode/pkg/clock"
)

// fakeRunner records every nmcli invocation and answers through respond.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	respond func(args []string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return nil, nil
	}
	return respond(args)
}

func (f *fakeRunner) callsWith(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func isConnect(args []string) bool {
	return strings.Contains(strings.Join(args, " "), "wifi connect")
}

func TestSplitTerse(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{line: "Home:82:WPA2", want: []string{"Home", "82", "WPA2"}},
		{line: `Cafe\:Guest:40:`, want: []string{"Cafe:Guest", "40", ""}},
		{line: `back\\slash:10:WEP`, want: []string{`back\slash`, "10", "WEP"}},
	}
	for _, tt := range tests {
		got := splitTerse(tt.line)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Fatalf("splitTerse(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestScan(t *testing.T) {
	out := "Home:82:WPA2\n" +
		`Cafe\:Guest:40:` + "\n" +
		"Home:60:WPA2\n" +
		":55:WPA2\n" +
		"Open:20:--\n" +
		"garbage\n"
	r := &fakeRunner{respond: func([]string) ([]byte, error) { return []byte(out), nil }}
	l := NewLink(r, LinkConfig{Interface: "wlan0"})

	got, err := l.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []NetworkInfo{
		{NetworkID: "Home", SignalStrength: -59, Encrypted: true},
		{NetworkID: "Cafe:Guest", SignalStrength: -80, Encrypted: false},
		{NetworkID: "Open", SignalStrength: -90, Encrypted: false},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d networks, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("network %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if r.callsWith("ifname wlan0") != 1 {
		t.Fatalf("scan should be bound to the configured interface: %v", r.calls)
	}
}

func TestScanError(t *testing.T) {
	r := &fakeRunner{respond: func([]string) ([]byte, error) { return nil, errors.New("no radio") }}
	if _, err := NewLink(r, LinkConfig{}).Scan(context.Background()); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestParseDeviceState(t *testing.T) {
	tests := []struct {
		out        string
		active     bool
		connection string
	}{
		{out: "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:Home\n", active: true, connection: "Home"},
		{out: "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:camnode-ap", active: true, connection: "camnode-ap"},
		{out: "GENERAL.STATE:30 (disconnected)\nGENERAL.CONNECTION:\n", active: false},
		{out: "GENERAL.STATE:70 (connecting (getting IP configuration))", active: false},
		{out: "", active: false},
	}
	for _, tt := range tests {
		active, connection := parseDeviceState(tt.out)
		if active != tt.active || connection != tt.connection {
			t.Fatalf("parseDeviceState(%q) = %t, %q, want %t, %q", tt.out, active, connection, tt.active, tt.connection)
		}
	}
}

func TestLinkHotspotIsNotHomeConnection(t *testing.T) {
	release := make(chan struct{})
	r := &fakeRunner{respond: func(args []string) ([]byte, error) {
		if isConnect(args) {
			<-release
			return nil, errors.New("secrets were required, but not provided")
		}
		return []byte("GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:camnode-ap\n"), nil
	}}
	l := NewLink(r, LinkConfig{Interface: "wlan0"})

	if err := l.Connect("Home", "wrongpw"); err != nil {
		t.Fatal(err)
	}
	if err := l.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.IsConnected() {
		t.Fatalf("an active access point on the interface must not count as the home network")
	}

	close(release)
	l.wg.Wait()
	if l.IsConnected() {
		t.Fatalf("the failed join must leave the link disconnected")
	}
}

func TestLinkNoReconnectWhileAPActive(t *testing.T) {
	apUp := true
	r := &fakeRunner{respond: func(args []string) ([]byte, error) {
		if isConnect(args) {
			return nil, errors.New("timeout")
		}
		return []byte("GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:camnode-ap\n"), nil
	}}
	fc := clock.NewFake(time.Unix(0, 0))
	l := NewLink(r, LinkConfig{
		Interface: "wlan0",
		Clock:     fc,
		APActive:  func() bool { return apUp },
	})

	if err := l.Connect("Home", "pw"); err != nil {
		t.Fatal(err)
	}
	l.wg.Wait()

	fc.Advance(time.Minute)
	if err := l.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	l.wg.Wait()
	if n := r.callsWith("wifi connect"); n != 1 {
		t.Fatalf("a reconnect would take the access point down: %d attempts", n)
	}

	apUp = false
	if err := l.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	l.wg.Wait()
	if n := r.callsWith("wifi connect"); n != 2 {
		t.Fatalf("expected a reconnect once the access point is gone, got %d attempts", n)
	}
}

func TestLinkConnect(t *testing.T) {
	r := &fakeRunner{}
	l := NewLink(r, LinkConfig{Interface: "wlan0"})

	if err := l.Connect("", "pw"); !errors.Is(err, ErrEmptyNetworkID) {
		t.Fatalf("expected ErrEmptyNetworkID, got %v", err)
	}

	if err := l.Connect("Home", "pw1234"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	l.wg.Wait()

	if !l.IsConnected() {
		t.Fatalf("expected connected after a successful attempt")
	}
	if r.callsWith("wifi connect Home password pw1234 ifname wlan0") != 1 {
		t.Fatalf("unexpected calls %v", r.calls)
	}
}

func TestLinkConnectOpenNetwork(t *testing.T) {
	r := &fakeRunner{}
	l := NewLink(r, LinkConfig{})
	if err := l.Connect("Cafe", ""); err != nil {
		t.Fatal(err)
	}
	l.wg.Wait()
	if r.callsWith("password") != 0 {
		t.Fatalf("open networks must not pass a password: %v", r.calls)
	}
}

func TestLinkSupersededAttemptIgnored(t *testing.T) {
	release := make(chan struct{})
	r := &fakeRunner{respond: func(args []string) ([]byte, error) {
		if strings.Contains(strings.Join(args, " "), "connect Old") {
			<-release
			return nil, errors.New("canceled")
		}
		return nil, nil
	}}
	l := NewLink(r, LinkConfig{})

	if err := l.Connect("Old", "a"); err != nil {
		t.Fatal(err)
	}
	if err := l.Connect("New", "b"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !l.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatalf("second attempt did not connect")
		}
		time.Sleep(time.Millisecond)
	}

	close(release)
	l.wg.Wait()
	if !l.IsConnected() {
		t.Fatalf("a superseded failure must not flip the link state")
	}
}

func TestLinkUpdateReconnects(t *testing.T) {
	var mu sync.Mutex
	state := "GENERAL.STATE:30 (disconnected)"
	connectOK := false

	r := &fakeRunner{respond: func(args []string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if isConnect(args) {
			if connectOK {
				return nil, nil
			}
			return nil, errors.New("timeout")
		}
		return []byte(state), nil
	}}
	fc := clock.NewFake(time.Unix(0, 0))
	l := NewLink(r, LinkConfig{Interface: "wlan0", Clock: fc})

	// Update without a known network never reconnects.
	if err := l.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.callsWith("wifi connect") != 0 {
		t.Fatalf("no network known yet")
	}

	if err := l.Connect("Home", "pw"); err != nil {
		t.Fatal(err)
	}
	l.wg.Wait()
	if l.IsConnected() {
		t.Fatalf("the first attempt fails")
	}

	fc.Advance(DefaultReconnectInterval - time.Second)
	if err := l.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	l.wg.Wait()
	if n := r.callsWith("wifi connect"); n != 1 {
		t.Fatalf("reconnect before the interval elapsed: %d attempts", n)
	}

	mu.Lock()
	connectOK = true
	mu.Unlock()
	fc.Advance(time.Second)
	if err := l.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	l.wg.Wait()
	if n := r.callsWith("wifi connect"); n != 2 {
		t.Fatalf("expected a reconnect attempt, got %d attempts", n)
	}
	if !l.IsConnected() {
		t.Fatalf("expected connected after the reconnect")
	}

	mu.Lock()
	state = "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:Home"
	mu.Unlock()
	if err := l.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !l.IsConnected() {
		t.Fatalf("polled state should report connected")
	}
	l.Close()
}

// apRunner answers "connection show" for the AP profile with the given
// activation state.
func apRunner(active *bool) *fakeRunner {
	var mu sync.Mutex
	return &fakeRunner{respond: func(args []string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		cmd := strings.Join(args, " ")
		switch {
		case strings.Contains(cmd, "connection show"):
			if *active {
				return []byte("GENERAL.STATE:activated\n"), nil
			}
			return []byte(""), nil
		case strings.Contains(cmd, "connection up"):
			*active = true
		case strings.Contains(cmd, "connection down"):
			if !*active {
				return nil, errors.New("no active connection provided")
			}
			*active = false
		}
		return nil, nil
	}}
}

func TestAccessPointLifecycle(t *testing.T) {
	active := false
	r := apRunner(&active)
	ap := NewAccessPoint(r, APConfig{Interface: "wlan0"})

	if err := ap.Start("MyCam-DDEEFF"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !ap.Running() {
		t.Fatalf("expected running")
	}
	if r.callsWith("ssid MyCam-DDEEFF") != 1 || r.callsWith("ipv4.addresses 192.164.4.1/24") != 1 {
		t.Fatalf("unexpected calls %v", r.calls)
	}
	if got := ap.Address().String(); got != DefaultAPAddress {
		t.Fatalf("unexpected address %s", got)
	}

	if err := ap.Start("MyCam-DDEEFF"); err != nil {
		t.Fatal(err)
	}
	if r.callsWith("connection add") != 1 || r.callsWith("connection up") != 1 {
		t.Fatalf("starting an active AP with the same name must not touch it: %v", r.calls)
	}

	if err := ap.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if ap.Running() {
		t.Fatalf("expected stopped")
	}
	if r.callsWith("connection down camnode-ap") != 1 {
		t.Fatalf("expected the AP to be brought down: %v", r.calls)
	}
	if err := ap.Stop(); err != nil {
		t.Fatalf("stopping a stopped AP should succeed: %v", err)
	}
}

func TestAccessPointStartFailure(t *testing.T) {
	r := &fakeRunner{respond: func(args []string) ([]byte, error) {
		if len(args) > 1 && args[1] == "up" {
			return nil, errors.New("no AP support")
		}
		return nil, nil
	}}
	ap := NewAccessPoint(r, APConfig{})
	if err := ap.Start("MyCam-000000"); err == nil {
		t.Fatalf("expected an error")
	}
	if ap.Running() {
		t.Fatalf("a failed start must not report running")
	}
}

func TestAccessPointReactivatesDroppedProfile(t *testing.T) {
	active := false
	r := apRunner(&active)
	ap := NewAccessPoint(r, APConfig{Interface: "wlan0"})

	if err := ap.Start("MyCam-DDEEFF"); err != nil {
		t.Fatal(err)
	}

	// A station connect on the same radio deactivates the hotspot.
	active = false

	if err := ap.Start("MyCam-DDEEFF"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !active {
		t.Fatalf("expected the access point to be active again")
	}
	if n := r.callsWith("connection up camnode-ap"); n != 2 {
		t.Fatalf("expected the profile to be brought up again, got %d up calls", n)
	}
	if n := r.callsWith("connection add"); n != 1 {
		t.Fatalf("reactivation must reuse the profile, got %d adds", n)
	}
}

func TestAccessPointStopAfterProfileDropped(t *testing.T) {
	active := false
	r := apRunner(&active)
	ap := NewAccessPoint(r, APConfig{})

	if err := ap.Start("MyCam-DDEEFF"); err != nil {
		t.Fatal(err)
	}
	active = false

	if err := ap.Stop(); err != nil {
		t.Fatalf("stopping an already inactive AP should succeed: %v", err)
	}
	if ap.Running() {
		t.Fatalf("expected stopped")
	}
}

func TestAccessPointDNSConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dnsmasq-shared.d")
	active := false
	ap := NewAccessPoint(apRunner(&active), APConfig{DNSConfigDir: dir})

	if err := ap.Start("MyCam-DDEEFF"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, dnsConfigFile))
	if err != nil {
		t.Fatalf("drop-in not written: %v", err)
	}
	conf := string(b)
	if !strings.Contains(conf, "port=0\n") || !strings.Contains(conf, "dhcp-option=option:dns-server,192.164.4.1\n") {
		t.Fatalf("unexpected drop-in:\n%s", conf)
	}
}
