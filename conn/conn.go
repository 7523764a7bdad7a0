// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package conn provides the multicast UDP transport: it joins the mDNS groups
// on every eligible interface, feeds records from received responses to a
// sink, and writes queued questions to the groups under rate control.
package conn

import (
	"context"
	"errors"
	"io"
	"log"
	"net"

	"github.com/caffix/discover/types"
	"github.com/caffix/discover/utils"
	"github.com/caffix/queue"
	"github.com/miekg/dns"
	"go.uber.org/ratelimit"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/time/rate"
)

// maxWritesPerSec paces individual writes to the multicast groups.
const maxWritesPerSec = 50

var (
	groupINET  = &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}
	groupINET6 = &net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: 5353}
)

// Sink receives every resource record carried by a multicast response, along
// with the network path it arrived on.
type Sink func(iface int, family types.Family, rr dns.RR)

// Conn is the multicast transport shared by all browsers of one server.
type Conn struct {
	done   chan struct{}
	log    *log.Logger
	sink   Sink
	queue  queue.Queue
	qps    *rate.Limiter
	pacing ratelimit.Limiter
	ifaces *registry
	v4     *ipv4.PacketConn
	v6     *ipv6.PacketConn
}

// New joins the mDNS multicast groups on all eligible interfaces and starts
// the read loops and the paced writer. qps bounds the number of questions put
// on the wire each second; zero or below means no bound beyond write pacing.
func New(qps int, sink Sink, logger *log.Logger) (*Conn, error) {
	limit := rate.Inf
	if qps > 0 {
		limit = rate.Limit(qps)
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	c := &Conn{
		done:   make(chan struct{}, 1),
		log:    logger,
		sink:   sink,
		queue:  queue.NewQueue(),
		qps:    rate.NewLimiter(limit, 1),
		pacing: ratelimit.New(maxWritesPerSec),
		ifaces: newRegistry(),
	}

	if err := c.joinGroups(); err != nil {
		c.Close()
		return nil, err
	}

	if c.v4 != nil {
		go c.responses4()
	}
	if c.v6 != nil {
		go c.responses6()
	}
	go c.sends()
	return c, nil
}

// Close shuts down the writer and both read loops.
func (c *Conn) Close() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.done)

	if c.v4 != nil {
		_ = c.v4.Close()
	}
	if c.v6 != nil {
		_ = c.v6.Close()
	}
}

// Send queues a question for transmission to the multicast groups.
func (c *Conn) Send(q dns.Question) {
	select {
	case <-c.done:
		return
	default:
	}
	c.queue.Append(q)
}

func (c *Conn) joinGroups() error {
	ifaces := c.ifaces.All()
	if len(ifaces) == 0 {
		return errors.New("no multicast-capable interfaces")
	}

	if lc, err := net.ListenPacket("udp4", "0.0.0.0:5353"); err == nil {
		c.v4 = ipv4.NewPacketConn(lc)
		_ = c.v4.SetControlMessage(ipv4.FlagInterface, true)
	}
	if lc, err := net.ListenPacket("udp6", "[::]:5353"); err == nil {
		c.v6 = ipv6.NewPacketConn(lc)
		_ = c.v6.SetControlMessage(ipv6.FlagInterface, true)
	}

	// an interface that joins neither group carries no traffic for us
	for _, ifi := range ifaces {
		var joined bool
		if c.v4 != nil && c.v4.JoinGroup(ifi, groupINET) == nil {
			joined = true
		}
		if c.v6 != nil && c.v6.JoinGroup(ifi, groupINET6) == nil {
			joined = true
		}
		if !joined {
			c.ifaces.Remove(ifi.Index)
		}
	}

	if len(c.ifaces.All()) == 0 {
		return errors.New("failed to join the multicast groups on any interface")
	}
	return nil
}

// sends drains the outbound question queue under the QPS bound and pacing.
func (c *Conn) sends() {
loop:
	for {
		select {
		case <-c.done:
			break loop
		case <-c.queue.Signal():
		}

		for {
			element, found := c.queue.Next()
			if !found {
				break
			}
			if q, ok := element.(dns.Question); ok {
				_ = c.qps.Wait(context.TODO())
				c.pacing.Take()
				c.writeQuestion(q)
			}
		}
	}
	// drop whatever remained queued
	c.queue.Process(func(element interface{}) {})
}

func (c *Conn) writeQuestion(q dns.Question) {
	out, err := utils.QueryMsg(q).Pack()
	if err != nil {
		c.log.Printf("failed to pack the question for %s: %v", q.Name, err)
		return
	}

	for _, ifi := range c.ifaces.All() {
		if c.v4 != nil {
			cm := &ipv4.ControlMessage{IfIndex: ifi.Index}
			if _, err := c.v4.WriteTo(out, cm, groupINET); err != nil {
				c.log.Printf("%s: IPv4 write failed: %v", ifi.Name, err)
			}
		}
		if c.v6 != nil {
			cm := &ipv6.ControlMessage{IfIndex: ifi.Index}
			if _, err := c.v6.WriteTo(out, cm, groupINET6); err != nil {
				c.log.Printf("%s: IPv6 write failed: %v", ifi.Name, err)
			}
		}
	}
}

func (c *Conn) responses4() {
	b := make([]byte, dns.DefaultMsgSize)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		n, cm, _, err := c.v4.ReadFrom(b)
		if err != nil {
			continue
		}

		iface := 0
		if cm != nil {
			iface = cm.IfIndex
		}
		c.handleResponse(iface, types.FamilyINET, b[:n])
	}
}

func (c *Conn) responses6() {
	b := make([]byte, dns.DefaultMsgSize)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		n, cm, _, err := c.v6.ReadFrom(b)
		if err != nil {
			continue
		}

		iface := 0
		if cm != nil {
			iface = cm.IfIndex
		}
		c.handleResponse(iface, types.FamilyINET6, b[:n])
	}
}

// cachedTypes are the record types the cache subscribers consume; everything
// else the multicast groups carry is dropped at the transport.
var cachedTypes = []uint16{dns.TypeSRV, dns.TypeA, dns.TypeAAAA}

func (c *Conn) handleResponse(iface int, family types.Family, packet []byte) {
	if iface != 0 && c.ifaces.Lookup(iface) == nil {
		return
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(packet); err != nil {
		return
	}

	for _, qtype := range cachedTypes {
		for _, rr := range utils.AnswersByType(msg, qtype) {
			c.sink(iface, family, rr)
		}
	}
}
