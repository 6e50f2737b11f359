package mdns

import (
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/net/dns/dnsmessage"
)

// Record maps a hostname to the address a Responder advertises for it.
type Record struct {
	Hostname string
	Addr     netip.Addr
}

// Responder answers multicast DNS queries for registered hostnames.
type Responder struct {
	records   map[string]*Record
	answers   map[*Record]*dnsmessage.Resource
	mu        sync.Mutex
	conn      *net.UDPConn
	group     *net.UDPAddr
	shutdown  chan struct{}
	closeOnce sync.Once
	opChannel chan operation
}

// Querier resolves hostnames by sending a one-shot query to the mDNS group.
type Querier struct {
	Group   *net.UDPAddr
	Timeout time.Duration
}

type opKind int

const (
	registerOp opKind = iota
	unregisterOp
)

type operation struct {
	op     opKind
	record *Record
	done   chan error
}
