// Package portal implements the captive DNS responder served on the
// fallback network. Every address lookup resolves to the node itself so
// that clients land on the provisioning page.
package portal

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAddr = ":53"
	DefaultTTL  = 60

	// maxPacketsPerPump bounds the work done by one PumpOnce so the
	// provisioning tick stays short under a query flood.
	maxPacketsPerPump = 16
	pumpWait          = 5 * time.Millisecond
	maxPacketSize     = dns.MaxMsgSize
)

// Portal answers DNS queries on a UDP socket. It never runs a goroutine of
// its own; queries are served only while PumpOnce is called.
type Portal struct {
	addr string
	ip   net.IP
	ttl  uint32

	mu      sync.Mutex
	conn    net.PacketConn
	buf     []byte
	queries uint64
}

// New returns a portal that listens on addr and resolves every name to ip.
func New(addr string, ip net.IP) *Portal {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Portal{
		addr: addr,
		ip:   ip.To4(),
		ttl:  DefaultTTL,
		buf:  make([]byte, maxPacketSize),
	}
}

// Start opens the socket. Starting a running portal is a no-op.
func (p *Portal) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return nil
	}
	if p.ip == nil {
		return pkgerrors.New("captive portal needs an IPv4 address")
	}

	conn, err := net.ListenPacket("udp4", p.addr)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", p.addr)
	}
	p.conn = conn

	logrus.WithFields(logrus.Fields{
		"addr": conn.LocalAddr().String(),
		"ip":   p.ip.String(),
	}).Info("captive portal started")
	return nil
}

// PumpOnce serves the queries that are already waiting, up to a small
// bound, and returns. It does nothing when the portal is stopped.
func (p *Portal) PumpOnce() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}

	for i := 0; i < maxPacketsPerPump; i++ {
		if err := p.conn.SetReadDeadline(time.Now().Add(pumpWait)); err != nil {
			return pkgerrors.Wrap(err, "failed to set read deadline")
		}
		n, from, err := p.conn.ReadFrom(p.buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil
			}
			return pkgerrors.Wrap(err, "failed to read dns query")
		}

		reply, err := p.answer(p.buf[:n])
		if err != nil {
			logrus.WithError(err).WithField("from", from.String()).Debug("dropping malformed dns query")
			continue
		}
		if reply == nil {
			continue
		}
		p.queries++
		if _, err := p.conn.WriteTo(reply, from); err != nil {
			logrus.WithError(err).WithField("to", from.String()).Warn("failed to send dns reply")
		}
	}
	return nil
}

// Stop closes the socket. Stopping a stopped portal is a no-op.
func (p *Portal) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil

	logrus.WithField("queries", p.queries).Info("captive portal stopped")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to close captive portal socket")
	}
	return nil
}

func (p *Portal) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// LocalAddr is the bound socket address, or nil when stopped.
func (p *Portal) LocalAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	return p.conn.LocalAddr()
}

// answer builds the reply to one query packet. Responses and non-query
// opcodes get no reply.
func (p *Portal) answer(packet []byte) ([]byte, error) {
	req := new(dns.Msg)
	if err := req.Unpack(packet); err != nil {
		return nil, err
	}
	if req.Response || req.Opcode != dns.OpcodeQuery {
		return nil, nil
	}

	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.RecursionAvailable = true

	for _, q := range req.Question {
		if q.Qclass != dns.ClassINET && q.Qclass != dns.ClassANY {
			continue
		}
		if q.Qtype != dns.TypeA && q.Qtype != dns.TypeANY {
			continue
		}
		resp.Answer = append(resp.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    p.ttl,
			},
			A: p.ip,
		})
	}

	return resp.Pack()
}
