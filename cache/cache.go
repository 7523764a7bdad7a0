// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package cache maintains the multicast record cache and implements the
// record browser interface on top of it: subscriptions receive add/remove
// notifications for records matching their query key, deduplicated by
// content, with removals driven by goodbye packets and TTL expiry.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/caffix/discover/types"
	"github.com/miekg/dns"
)

const sweepInterval = time.Second

// SendFunc asks the transport to put a question on the wire.
type SendFunc func(q dns.Question)

// Cache is the deduplicated store of records heard on the network.
type Cache struct {
	sync.Mutex
	done       chan struct{}
	dispatch   func(func())
	send       SendFunc
	entries    []*entry
	subs       []*subscription
	pending    []delivery
	delivering bool
}

type entry struct {
	iface   int
	family  types.Family
	rr      dns.RR
	expires time.Time
}

// New initializes a record cache. All subscription handlers are invoked
// through dispatch, which the owning server uses to serialize callbacks onto
// its event loop. send is used to re-ask subscription questions and may be
// nil when the cache is fed externally.
func New(dispatch func(func()), send SendFunc) *Cache {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}

	c := &Cache{
		done:     make(chan struct{}, 1),
		dispatch: dispatch,
		send:     send,
	}

	go c.sweeps()
	return c
}

// Close stops TTL expiry and cancels every remaining subscription.
func (c *Cache) Close() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.done)

	c.Lock()
	subs := c.subs
	c.subs = nil
	c.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// Put adds or refreshes a record heard on the provided network path. A record
// carrying a zero TTL withdraws the cached equivalent. Content duplicates
// only refresh the expiry of the existing entry.
func (c *Cache) Put(iface int, family types.Family, rr dns.RR) {
	ttl := rr.Header().Ttl

	c.Lock()
	idx := -1
	for n, e := range c.entries {
		if e.iface == iface && e.family == family && dns.IsDuplicate(e.rr, rr) {
			idx = n
			break
		}
	}

	switch {
	case ttl == 0:
		if idx >= 0 {
			e := c.entries[idx]
			c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
			c.notify(e, types.OpRemove)
		}
	case idx >= 0:
		c.entries[idx].expires = time.Now().Add(time.Duration(ttl) * time.Second)
	default:
		e := &entry{
			iface:   iface,
			family:  family,
			rr:      rr,
			expires: time.Now().Add(time.Duration(ttl) * time.Second),
		}
		c.entries = append(c.entries, e)
		c.notify(e, types.OpNew)
	}
	c.Unlock()

	c.deliver()
}

// Subscribe registers a handler for records matching the query key on the
// provided network path. Records already in the cache are replayed as
// additions through the dispatcher, never synchronously. The subscription
// keeps re-asking its question with truncated exponential backoff until
// canceled.
func (c *Cache) Subscribe(iface int, family types.Family, q dns.Question, h types.RecordHandler) (types.Subscription, error) {
	select {
	case <-c.done:
		return nil, types.ErrSubscriptionFailed
	default:
	}

	sub := &subscription{
		cache:  c,
		iface:  iface,
		family: family,
		q:      q,
		h:      h,
	}

	c.Lock()
	c.subs = append(c.subs, sub)
	for _, e := range c.entries {
		if sub.matches(e) {
			c.pending = append(c.pending, delivery{sub, e, types.OpNew})
		}
	}
	c.Unlock()
	c.deliver()

	if c.send != nil {
		c.send(q)
		sub.reschedule()
	}
	return sub, nil
}

type delivery struct {
	sub *subscription
	e   *entry
	op  types.Op
}

// notify appends the handler invocations an entry event fans out to. Callers
// hold the cache lock, which is what keeps the pending queue in the same
// order as the cache mutations, and deliver after releasing it.
func (c *Cache) notify(e *entry, op types.Op) {
	for _, sub := range c.subs {
		if sub.matches(e) {
			c.pending = append(c.pending, delivery{sub, e, op})
		}
	}
}

// deliver drains the pending queue in FIFO order. Only one caller drains at a
// time so concurrent mutators cannot reorder events; the cancellation check
// runs at delivery time so no event arrives after Cancel returns.
func (c *Cache) deliver() {
	c.Lock()
	if c.delivering {
		c.Unlock()
		return
	}
	c.delivering = true

	for len(c.pending) > 0 {
		d := c.pending[0]
		c.pending = c.pending[1:]
		c.Unlock()

		c.dispatch(func() {
			c.Lock()
			canceled := d.sub.canceled
			c.Unlock()

			if !canceled {
				d.sub.h(d.e.iface, d.e.family, d.op, d.e.rr)
			}
		})
		c.Lock()
	}
	c.delivering = false
	c.Unlock()
}

func (c *Cache) sweeps() {
	t := time.NewTimer(sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-t.C:
		}

		c.expire(time.Now())
		t.Reset(sweepInterval)
	}
}

// expire withdraws every entry whose TTL has lapsed.
func (c *Cache) expire(now time.Time) {
	c.Lock()
	remaining := c.entries[:0]
	for _, e := range c.entries {
		if now.Before(e.expires) {
			remaining = append(remaining, e)
		} else {
			c.notify(e, types.OpRemove)
		}
	}
	c.entries = remaining
	c.Unlock()

	c.deliver()
}

type subscription struct {
	cache     *Cache
	iface     int
	family    types.Family
	q         dns.Question
	h         types.RecordHandler
	canceled  bool
	requeries int
	timer     *time.Timer
}

// Cancel stops delivery and the re-query schedule.
func (s *subscription) Cancel() {
	c := s.cache

	c.Lock()
	if s.canceled {
		c.Unlock()
		return
	}
	s.canceled = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for idx, cur := range c.subs {
		if cur == s {
			c.subs = append(c.subs[:idx], c.subs[idx+1:]...)
			break
		}
	}
	c.Unlock()
}

func (s *subscription) matches(e *entry) bool {
	if s.iface != types.InterfaceAll && s.iface != e.iface {
		return false
	}
	if s.family != types.FamilyUnspec && s.family != e.family {
		return false
	}

	hdr := e.rr.Header()
	if s.q.Qtype != dns.TypeANY && s.q.Qtype != hdr.Rrtype {
		return false
	}
	if s.q.Qclass != dns.ClassANY && s.q.Qclass != hdr.Class {
		return false
	}
	return strings.EqualFold(dns.Fqdn(s.q.Name), hdr.Name)
}

// reschedule arms the next re-query per the continuous-querying backoff.
func (s *subscription) reschedule() {
	c := s.cache

	c.Lock()
	defer c.Unlock()

	if s.canceled {
		return
	}

	delay := TruncatedExponentialBackoff(s.requeries, time.Second, time.Hour)
	s.requeries++
	s.timer = time.AfterFunc(delay, func() {
		c.Lock()
		canceled := s.canceled
		c.Unlock()

		if !canceled {
			c.send(s.q)
			s.reschedule()
		}
	})
}
