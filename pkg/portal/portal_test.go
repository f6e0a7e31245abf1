package portal

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func startPortal(t *testing.T) *Portal {
	t.Helper()

	p := New("127.0.0.1:0", net.ParseIP("192.164.4.1"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

// exchange sends one query and pumps the portal until the reply arrives.
func exchange(t *testing.T, p *Portal, q *dns.Msg) *dns.Msg {
	t.Helper()

	conn, err := net.Dial("udp4", p.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	packet, err := q.Pack()
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	if _, err := conn.Write(packet); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	buf := make([]byte, dns.MaxMsgSize)
	for i := 0; i < 100; i++ {
		if err := p.PumpOnce(); err != nil {
			t.Fatalf("PumpOnce failed: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
		n, err := conn.Read(buf)
		if err != nil {
			continue
		}
		resp := new(dns.Msg)
		if err := resp.Unpack(buf[:n]); err != nil {
			t.Fatalf("unpack failed: %v", err)
		}
		return resp
	}
	t.Fatalf("no reply from the portal")
	return nil
}

func TestAnswersEveryName(t *testing.T) {
	p := startPortal(t)

	for _, name := range []string{"connectivitycheck.gstatic.com.", "captive.apple.com.", "example.org."} {
		q := new(dns.Msg)
		q.SetQuestion(name, dns.TypeA)

		resp := exchange(t, p, q)
		if resp.Id != q.Id || !resp.Response {
			t.Fatalf("reply does not match the query: %v", resp)
		}
		if resp.Rcode != dns.RcodeSuccess {
			t.Fatalf("expected NOERROR, got %s", dns.RcodeToString[resp.Rcode])
		}
		if len(resp.Answer) != 1 {
			t.Fatalf("expected one answer for %s, got %v", name, resp.Answer)
		}
		a, ok := resp.Answer[0].(*dns.A)
		if !ok {
			t.Fatalf("expected an A record, got %T", resp.Answer[0])
		}
		if !a.A.Equal(net.ParseIP("192.164.4.1")) || a.Hdr.Name != name || a.Hdr.Ttl != DefaultTTL {
			t.Fatalf("unexpected answer %v", a)
		}
	}
}

func TestNonAddressQueryGetsEmptyAnswer(t *testing.T) {
	p := startPortal(t)

	q := new(dns.Msg)
	q.SetQuestion("example.org.", dns.TypeAAAA)

	resp := exchange(t, p, q)
	if resp.Rcode != dns.RcodeSuccess || len(resp.Answer) != 0 {
		t.Fatalf("expected an empty NOERROR reply, got %v", resp)
	}
}

func TestLifecycle(t *testing.T) {
	p := New("127.0.0.1:0", net.ParseIP("192.164.4.1"))

	if err := p.PumpOnce(); err != nil {
		t.Fatalf("pumping a stopped portal should be a no-op: %v", err)
	}
	if p.Running() || p.LocalAddr() != nil {
		t.Fatalf("expected stopped")
	}

	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	addr := p.LocalAddr().String()
	if err := p.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if p.LocalAddr().String() != addr {
		t.Fatalf("second Start must keep the same socket")
	}

	if err := p.PumpOnce(); err != nil {
		t.Fatalf("pumping an idle portal should return quietly: %v", err)
	}

	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if p.Running() {
		t.Fatalf("expected stopped")
	}
}

func TestStartRejectsNonIPv4(t *testing.T) {
	p := New("127.0.0.1:0", net.ParseIP("fe80::1"))
	if err := p.Start(); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestIgnoresResponses(t *testing.T) {
	p := New("", net.ParseIP("192.164.4.1"))

	m := new(dns.Msg)
	m.SetQuestion("example.org.", dns.TypeA)
	m.Response = true
	packet, err := m.Pack()
	if err != nil {
		t.Fatal(err)
	}

	reply, err := p.answer(packet)
	if err != nil || reply != nil {
		t.Fatalf("responses must not be answered: %v %v", reply, err)
	}
	if _, err := p.answer([]byte{0x01}); err == nil {
		t.Fatalf("expected an error for a truncated packet")
	}
}
