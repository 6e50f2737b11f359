package mdns

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"time"

	"golang.org/x/net/dns/dnsmessage"
)

const defaultQueryTimeout = 2 * time.Second

// ErrNoAnswer is returned when no responder answered before the deadline.
var ErrNoAnswer = errors.New("mdns: no answer")

// NewQuerier returns a Querier for the standard IPv4 mDNS group.
func NewQuerier() *Querier {
	return &Querier{Group: GroupAddr(), Timeout: defaultQueryTimeout}
}

// Name implements the resolver's lookup naming.
func (q *Querier) Name() string {
	return "mdns"
}

// LookupHost sends an A and AAAA query for host from an ephemeral port and
// returns the addresses in the first response that answers for it.
func (q *Querier) LookupHost(ctx context.Context, host string) ([]string, error) {
	name, err := dnsmessage.NewName(canonicalName(host))
	if err != nil {
		return nil, fmt.Errorf("invalid hostname %q: %w", host, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("failed to open mDNS query socket: %w", err)
	}
	defer conn.Close()

	timeout := q.Timeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	id := uint16(rand.UintN(1<<16-1) + 1)
	packed, err := (&dnsmessage.Message{
		Header: dnsmessage.Header{ID: id},
		Questions: []dnsmessage.Question{
			{Name: name, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET},
			{Name: name, Type: dnsmessage.TypeAAAA, Class: dnsmessage.ClassINET},
		},
	}).Pack()
	if err != nil {
		return nil, fmt.Errorf("failed to pack mDNS query: %w", err)
	}

	group := q.Group
	if group == nil {
		group = GroupAddr()
	}
	logger.Debug("Sending mDNS query", "hostname", name.String(), "to", group.String())
	if _, err := conn.WriteToUDP(packed, group); err != nil {
		return nil, fmt.Errorf("failed to send mDNS query: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w for %s: %w", ErrNoAnswer, host, ctx.Err())
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("%w for %s within %s", ErrNoAnswer, host, timeout)
			}
			return nil, fmt.Errorf("failed to read mDNS response: %w", err)
		}

		addrs, err := parseAnswers(buf[:n], id, name)
		if err != nil {
			logger.Debug("Ignoring mDNS packet", "from", from.String(), "error", err)
			continue
		}
		if len(addrs) > 0 {
			logger.Debug("Received mDNS answer", "hostname", name.String(), "addrs", addrs, "from", from.String())
			return addrs, nil
		}
	}
}

// parseAnswers extracts the A and AAAA answers for name. Responses carrying a
// different non-zero ID belong to another query and are rejected.
func parseAnswers(packet []byte, id uint16, name dnsmessage.Name) ([]string, error) {
	var p dnsmessage.Parser
	header, err := p.Start(packet)
	if err != nil {
		return nil, err
	}
	if !header.Response {
		return nil, errors.New("not a response")
	}
	if header.ID != 0 && header.ID != id {
		return nil, fmt.Errorf("unexpected message id %d", header.ID)
	}
	if err := p.SkipAllQuestions(); err != nil {
		return nil, err
	}

	want := canonicalName(name.String())
	var addrs []string
	for {
		h, err := p.AnswerHeader()
		if errors.Is(err, dnsmessage.ErrSectionDone) {
			break
		}
		if err != nil {
			return nil, err
		}
		if canonicalName(h.Name.String()) != want || h.TTL == 0 {
			if err := p.SkipAnswer(); err != nil {
				return nil, err
			}
			continue
		}

		switch h.Type {
		case dnsmessage.TypeA:
			r, err := p.AResource()
			if err != nil {
				return nil, err
			}
			addrs = append(addrs, netip.AddrFrom4(r.A).String())
		case dnsmessage.TypeAAAA:
			r, err := p.AAAAResource()
			if err != nil {
				return nil, err
			}
			addrs = append(addrs, netip.AddrFrom16(r.AAAA).String())
		default:
			if err := p.SkipAnswer(); err != nil {
				return nil, err
			}
		}
	}
	return addrs, nil
}
