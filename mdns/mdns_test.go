package mdns

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

// startLoopbackResponder runs a Responder on 127.0.0.1 and returns a Querier
// aimed at it instead of the multicast group.
func startLoopbackResponder(t *testing.T) (*Responder, *Querier) {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	r := NewResponderConn(conn, nil)
	r.Start()
	t.Cleanup(r.Shutdown)

	q := &Querier{Group: r.Addr().(*net.UDPAddr), Timeout: time.Second}
	return r, q
}

func TestQuerierResolvesRegisteredHost(t *testing.T) {
	r, q := startLoopbackResponder(t)
	require.NoError(t, r.Register(Record{Hostname: "arduino.local", Addr: netip.MustParseAddr("192.168.1.100")}))

	addrs, err := q.LookupHost(context.Background(), "Arduino.local")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.100"}, addrs)
}

func TestQuerierResolvesIPv6Host(t *testing.T) {
	r, q := startLoopbackResponder(t)
	require.NoError(t, r.Register(Record{Hostname: "arduino6.local.", Addr: netip.MustParseAddr("2001:db8::7")}))

	addrs, err := q.LookupHost(context.Background(), "arduino6.local")
	require.NoError(t, err)
	assert.Equal(t, []string{"2001:db8::7"}, addrs)
}

func TestQuerierNoAnswer(t *testing.T) {
	_, q := startLoopbackResponder(t)
	q.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := q.LookupHost(context.Background(), "nonexistent.local")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAnswer)
	assert.Contains(t, err.Error(), "nonexistent.local")
	assert.Less(t, time.Since(start), time.Second)
}

func TestQuerierContextCanceled(t *testing.T) {
	_, q := startLoopbackResponder(t)
	q.Timeout = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := q.LookupHost(ctx, "nonexistent.local")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAnswer)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnregister(t *testing.T) {
	r, q := startLoopbackResponder(t)
	q.Timeout = 100 * time.Millisecond

	require.NoError(t, r.Register(Record{Hostname: "arduino.local", Addr: netip.MustParseAddr("10.0.0.5")}))
	require.NoError(t, r.Unregister("ARDUINO.local."))

	_, err := q.LookupHost(context.Background(), "arduino.local")
	assert.ErrorIs(t, err, ErrNoAnswer)

	assert.Error(t, r.Unregister("arduino.local"))
}

func TestRegisterReplacesAddress(t *testing.T) {
	r, q := startLoopbackResponder(t)

	require.NoError(t, r.Register(Record{Hostname: "arduino.local", Addr: netip.MustParseAddr("10.0.0.5")}))
	require.NoError(t, r.Register(Record{Hostname: "arduino.local", Addr: netip.MustParseAddr("10.0.0.6")}))

	addrs, err := q.LookupHost(context.Background(), "arduino.local")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.6"}, addrs)
}

func TestRegisterInvalidRecord(t *testing.T) {
	r, _ := startLoopbackResponder(t)

	err := r.Register(Record{Hostname: "arduino.local"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported address")
}

func TestShutdownIdempotent(t *testing.T) {
	r, _ := startLoopbackResponder(t)

	r.Shutdown()
	r.Shutdown()

	err := r.Register(Record{Hostname: "arduino.local", Addr: netip.MustParseAddr("10.0.0.5")})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBuildRecord(t *testing.T) {
	a, err := buildRecord(&Record{Hostname: "Arduino.local", Addr: netip.MustParseAddr("192.168.1.100")}, defaultTTL)
	require.NoError(t, err)
	assert.Equal(t, dnsmessage.TypeA, a.Header.Type)
	assert.Equal(t, "arduino.local.", a.Header.Name.String())
	assert.Equal(t, dnsmessage.ClassINET|cacheFlush, a.Header.Class)
	assert.Equal(t, uint32(defaultTTL), a.Header.TTL)

	aaaa, err := buildRecord(&Record{Hostname: "arduino.local.", Addr: netip.MustParseAddr("fe80::1")}, 0)
	require.NoError(t, err)
	assert.Equal(t, dnsmessage.TypeAAAA, aaaa.Header.Type)
	assert.Equal(t, uint32(0), aaaa.Header.TTL)

	_, err = buildRecord(nil, defaultTTL)
	assert.Error(t, err)
}

func TestParseAnswers(t *testing.T) {
	name := dnsmessage.MustNewName("arduino.local.")
	other := dnsmessage.MustNewName("printer.local.")
	pack := func(h dnsmessage.Header, answers ...dnsmessage.Resource) []byte {
		b, err := (&dnsmessage.Message{Header: h, Answers: answers}).Pack()
		require.NoError(t, err)
		return b
	}
	answer := func(n dnsmessage.Name, ttl uint32, ip [4]byte) dnsmessage.Resource {
		return dnsmessage.Resource{
			Header: dnsmessage.ResourceHeader{Name: n, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET, TTL: ttl},
			Body:   &dnsmessage.AResource{A: ip},
		}
	}

	addrs, err := parseAnswers(pack(dnsmessage.Header{Response: true, ID: 7},
		answer(other, 120, [4]byte{10, 0, 0, 1}),
		answer(name, 0, [4]byte{10, 0, 0, 2}),
		answer(name, 120, [4]byte{10, 0, 0, 3}),
	), 7, name)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.3"}, addrs)

	// Multicast responses carry ID 0.
	addrs, err = parseAnswers(pack(dnsmessage.Header{Response: true}, answer(name, 120, [4]byte{10, 0, 0, 4})), 7, name)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.4"}, addrs)

	_, err = parseAnswers(pack(dnsmessage.Header{Response: true, ID: 8}, answer(name, 120, [4]byte{10, 0, 0, 5})), 7, name)
	assert.Error(t, err)

	_, err = parseAnswers(pack(dnsmessage.Header{ID: 7}), 7, name)
	assert.Error(t, err)
}
