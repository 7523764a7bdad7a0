// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package browse locates network-announced DNS servers. A Browser watches the
// record cache for service-announcement SRV records, resolves each announced
// host name to an address, and reports one consolidated New/Remove event per
// candidate to the client.
package browse

import (
	"fmt"
	"net"
	"sync"

	"github.com/caffix/discover/domains"
	"github.com/caffix/discover/types"
	"github.com/caffix/discover/utils"
	"github.com/miekg/dns"
)

// maxServerInfo bounds the number of candidates tracked per browser. Further
// distinct announcements are silently dropped until a slot frees up.
const maxServerInfo = 10

// EventFunc is invoked once with OpNew for every candidate that resolves, and
// at most once with a matching OpRemove when its announcement is withdrawn.
type EventFunc func(b *Browser, iface int, family types.Family, op types.Op, host string, addr net.IP, port uint16)

// Browser discovers DNS servers of one role within one domain.
type Browser struct {
	sync.Mutex
	srv      types.Server
	domain   string
	role     types.Role
	target   types.Family
	sub      types.Subscription
	info     []*serverInfo
	callback EventFunc
	closed   bool
}

// serverInfo tracks one physical announcement: the network path it arrived
// on, the announcement record, and its host-resolution sub-task.
type serverInfo struct {
	browser    *Browser
	iface      int
	family     types.Family
	record     *dns.SRV
	task       types.ResolveTask
	addr       net.IP
	notified   bool
	terminated bool
	removed    bool
}

// New creates a browser for DNS servers of the provided role within the
// domain, which defaults to "local" when empty. The target family selects the
// address family that host-name resolution should produce. Construction
// failures are also recorded in the server error slot. No event is delivered
// before New returns.
func New(srv types.Server, iface int, family types.Family, domain string, role types.Role, target types.Family, callback EventFunc) (*Browser, error) {
	if domain == "" {
		domain = domains.DefaultDomain
	}
	name, err := domains.Normalize(domain)
	if err != nil {
		srv.SetErr(err)
		return nil, err
	}
	q, err := domains.ServerQuery(name, role)
	if err != nil {
		srv.SetErr(err)
		return nil, err
	}

	b := &Browser{
		srv:      srv,
		domain:   name,
		role:     role,
		target:   target,
		callback: callback,
	}
	srv.Register(b)

	sub, err := srv.Records().Subscribe(iface, family, q, b.onRecord)
	if err != nil {
		err = fmt.Errorf("%w: %v", types.ErrSubscriptionFailed, err)
		srv.SetErr(err)
		b.Close()
		return nil, err
	}

	b.Lock()
	closed := b.closed
	b.sub = sub
	b.Unlock()
	// Close raced the subscription into existence
	if closed {
		sub.Cancel()
	}
	return b, nil
}

// Domain returns the normalized domain this browser operates on.
func (b *Browser) Domain() string {
	return b.domain
}

// Close tears down every tracked candidate, cancels in-flight resolutions,
// removes the browser from the server registry, and cancels the record
// subscription. No event of any kind is delivered once Close begins, and no
// Remove is emitted for candidates the client was never told about. Closing
// an already-closed browser is a no-op.
func (b *Browser) Close() {
	b.Lock()
	if b.closed {
		b.Unlock()
		return
	}
	b.closed = true
	for _, i := range b.info {
		i.removed = true
		if i.task != nil {
			i.task.Cancel()
			i.task = nil
		}
	}
	b.info = nil
	sub := b.sub
	b.sub = nil
	b.Unlock()

	b.srv.Deregister(b)
	if sub != nil {
		sub.Cancel()
	}
}

// onRecord dispatches add/remove notifications from the record browser.
func (b *Browser) onRecord(iface int, family types.Family, op types.Op, rr dns.RR) {
	record, ok := rr.(*dns.SRV)
	if !ok {
		return
	}

	switch op {
	case types.OpNew:
		b.addServerInfo(iface, family, record)
	case types.OpRemove:
		b.removeServerInfo(iface, family, record)
	}
}

func (b *Browser) addServerInfo(iface int, family types.Family, record *dns.SRV) {
	b.Lock()
	if b.closed || b.getServerInfo(iface, family, record) != nil || len(b.info) >= maxServerInfo {
		b.Unlock()
		return
	}

	i := &serverInfo{
		browser: b,
		iface:   iface,
		family:  family,
		record:  record,
	}
	b.info = append(b.info, i)
	b.Unlock()

	task, err := b.srv.Hosts().Resolve(iface, family, record.Target, b.target, i.onResolved)
	if err != nil {
		// The candidate is silently dropped, matching the capacity policy
		b.Lock()
		b.releaseServerInfo(i)
		b.Unlock()
		return
	}

	b.Lock()
	if i.removed {
		b.Unlock()
		task.Cancel()
		return
	}
	if !i.terminated {
		i.task = task
	}
	b.Unlock()
}

func (b *Browser) removeServerInfo(iface int, family types.Family, record *dns.SRV) {
	b.Lock()
	i := b.getServerInfo(iface, family, record)
	if i == nil {
		b.Unlock()
		return
	}

	b.releaseServerInfo(i)
	fire := i.notified
	b.Unlock()

	if fire {
		b.callback(b, iface, family, types.OpRemove, utils.RemoveLastDot(i.record.Target), i.addr, i.record.Port)
	}
}

// onResolved handles the single terminus of a candidate's resolution task.
// Only the found terminus promotes the candidate to the client; every other
// terminus leaves it tracked but permanently unresolved.
func (i *serverInfo) onResolved(iface int, family types.Family, ev types.ResolveEvent, host string, addr net.IP) {
	b := i.browser

	b.Lock()
	i.task = nil
	i.terminated = true
	fire := ev == types.HostFound && !i.removed && !b.closed
	if fire {
		i.addr = addr
		i.notified = true
	}
	b.Unlock()

	if fire {
		b.callback(b, i.iface, i.family, types.OpNew, utils.RemoveLastDot(i.record.Target), addr, i.record.Port)
	}
}

// getServerInfo performs the identity lookup: interface, address family, and
// announcement-record equality that ignores the record's time-to-live.
func (b *Browser) getServerInfo(iface int, family types.Family, record *dns.SRV) *serverInfo {
	for _, i := range b.info {
		if i.iface == iface && i.family == family && dns.IsDuplicate(i.record, record) {
			return i
		}
	}
	return nil
}

// releaseServerInfo cancels any in-flight resolution and drops the entry from
// the collection. Callback emission is the caller's responsibility.
func (b *Browser) releaseServerInfo(i *serverInfo) {
	i.removed = true
	if i.task != nil {
		i.task.Cancel()
		i.task = nil
	}

	for idx, cur := range b.info {
		if cur == i {
			b.info = append(b.info[:idx], b.info[idx+1:]...)
			break
		}
	}
}
