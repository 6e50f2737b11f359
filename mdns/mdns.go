// Package mdns speaks just enough multicast DNS to find a device on the local
// network and to stand in for one during development.
package mdns

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"

	"golang.org/x/net/dns/dnsmessage"
)

const (
	mdnsMulticastAddressStr = "224.0.0.251"
	mdnsPort                = 5353
	defaultTTL              = 120
)

var (
	mdnsMulticastAddress = netip.MustParseAddr(mdnsMulticastAddressStr)
	logger               = slog.New(slog.NewTextHandler(os.Stdout, nil))
)

// ErrClosed is returned by operations on a Responder after Shutdown.
var ErrClosed = errors.New("mdns: responder closed")

// GroupAddr returns the IPv4 mDNS group address and port.
func GroupAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(netip.AddrPortFrom(mdnsMulticastAddress, mdnsPort))
}

// NewResponder joins the mDNS multicast group on all interfaces.
func NewResponder() (*Responder, error) {
	group := GroupAddr()
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS responder: %w", err)
	}
	return NewResponderConn(conn, group), nil
}

// NewResponderConn builds a Responder on an existing socket. Goodbye packets
// go to group; a nil group disables them.
func NewResponderConn(conn *net.UDPConn, group *net.UDPAddr) *Responder {
	return &Responder{
		records:   make(map[string]*Record),
		answers:   make(map[*Record]*dnsmessage.Resource),
		conn:      conn,
		group:     group,
		shutdown:  make(chan struct{}),
		opChannel: make(chan operation),
	}
}

// Addr returns the local address the responder reads from.
func (s *Responder) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Register starts answering for rec.Hostname. The responder must be started.
func (s *Responder) Register(rec Record) error {
	return s.do(operation{op: registerOp, record: &rec})
}

// Unregister stops answering for hostname and announces a goodbye.
func (s *Responder) Unregister(hostname string) error {
	return s.do(operation{op: unregisterOp, record: &Record{Hostname: hostname}})
}

func (s *Responder) do(op operation) error {
	select {
	case <-s.shutdown:
		return ErrClosed
	default:
	}

	op.done = make(chan error, 1)
	select {
	case s.opChannel <- op:
	case <-s.shutdown:
		return ErrClosed
	}
	return <-op.done
}

func (s *Responder) Start() {
	go s.run()
	go s.listen()
}

func (s *Responder) listen() {
	logger.Info("Starting mDNS listener", "address", s.conn.LocalAddr().String())
	buf := make([]byte, 1500)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				logger.Error("Failed to read from UDP", "error", err)
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.handleQuery(buf[:n], addr)
	}
}

func (s *Responder) handleQuery(packet []byte, from *net.UDPAddr) {
	var p dnsmessage.Parser
	header, err := p.Start(packet)
	if err != nil {
		logger.Error("Failed to parse DNS message header", "error", err)
		return
	}

	if header.Response {
		return
	}

	questions, err := p.AllQuestions()
	if err != nil {
		logger.Error("Failed to parse DNS questions", "error", err)
		return
	}

	if len(questions) == 0 {
		logger.Warn("Received DNS query with no questions", "from", from.String())
		return
	}

	logger.Debug(fmt.Sprintf("Received query from %s for: %v", from.String(), questions))
	var answers []dnsmessage.Resource
	s.mu.Lock()
	for _, q := range questions {
		if q.Type != dnsmessage.TypeA && q.Type != dnsmessage.TypeAAAA {
			continue
		}
		rec, ok := s.records[canonicalName(q.Name.String())]
		if !ok {
			continue
		}
		if answer, ok := s.answers[rec]; ok && answer.Header.Type == q.Type {
			answers = append(answers, *answer)
		}
	}
	s.mu.Unlock()

	if len(answers) == 0 {
		return
	}

	msg := dnsmessage.Message{
		Header: dnsmessage.Header{
			Response:      true,
			Authoritative: true,
		},
		Answers: answers,
	}
	// Legacy unicast queriers (RFC 6762 section 6.7) expect the query ID and
	// questions back, and no cache-flush bit.
	if from.Port != mdnsPort {
		msg.Header.ID = header.ID
		msg.Questions = questions
		for i := range msg.Answers {
			msg.Answers[i].Header.Class &^= cacheFlush
		}
	}
	s.send(msg, from)
}

func (s *Responder) send(msg dnsmessage.Message, to *net.UDPAddr) {
	packed, err := msg.Pack()
	if err != nil {
		logger.Error("Failed to pack DNS response", "error", err)
		return
	}

	logger.Info("Sending DNS response", "answers", len(msg.Answers), "to", to.String())
	if _, err := s.conn.WriteToUDP(packed, to); err != nil {
		logger.Error("Failed to send DNS response", "error", err, "to", to.String())
	}
}

func (s *Responder) run() {
	logger.Info("Starting mDNS operational loop", "address", mdnsMulticastAddressStr, "port", mdnsPort)
	for {
		select {
		case op := <-s.opChannel:
			s.mu.Lock()
			op.done <- s.apply(op)
			s.mu.Unlock()

		case <-s.shutdown:
			logger.Info("Stopping mDNS operational loop")
			return
		}
	}
}

// apply runs with s.mu held.
func (s *Responder) apply(op operation) error {
	name := canonicalName(op.record.Hostname)
	switch op.op {
	case registerOp:
		logger.Info("Registering record", "hostname", name, "ip", op.record.Addr)
		answer, err := buildRecord(op.record, defaultTTL)
		if err != nil {
			logger.Error("Failed to build record", "error", err, "hostname", name)
			return err
		}
		if old, exists := s.records[name]; exists {
			delete(s.answers, old)
		}
		s.records[name] = op.record
		s.answers[op.record] = answer

	case unregisterOp:
		rec, exists := s.records[name]
		if !exists {
			logger.Warn("Attempted to unregister non-existent record", "hostname", name)
			return fmt.Errorf("hostname %q is not registered", op.record.Hostname)
		}
		logger.Info("Unregistering record", "hostname", name, "ip", rec.Addr)
		s.sendGoodbye(rec)
		delete(s.answers, rec)
		delete(s.records, name)
	}
	return nil
}

func (s *Responder) sendGoodbye(rec *Record) {
	if s.group == nil {
		return
	}
	answer, err := buildRecord(rec, 0)
	if err != nil {
		logger.Error("Failed to build goodbye record", "error", err, "hostname", rec.Hostname)
		return
	}

	logger.Debug("Sending goodbye message", "hostname", rec.Hostname, "ip", rec.Addr)
	s.send(dnsmessage.Message{
		Header: dnsmessage.Header{
			Response:      true,
			Authoritative: true,
		},
		Answers: []dnsmessage.Resource{*answer},
	}, s.group)
}

// Shutdown says goodbye for every record and closes the socket. Safe to call
// more than once.
func (s *Responder) Shutdown() {
	s.closeOnce.Do(func() {
		logger.Info("Shutting down mDNS responder...")
		s.mu.Lock()
		for _, rec := range s.records {
			s.sendGoodbye(rec)
		}
		s.mu.Unlock()

		close(s.shutdown)
		s.conn.Close()
	})
}
