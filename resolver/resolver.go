// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package resolver implements one-shot asynchronous host-name to address
// lookups on top of the record cache. Every task delivers exactly one
// terminus: the first matching address record, or a failure when the timeout
// lapses first.
package resolver

import (
	"sync"
	"time"

	"github.com/caffix/discover/types"
	"github.com/caffix/discover/utils"
	"github.com/miekg/dns"
)

// Resolver turns cache subscriptions into host-name resolution tasks.
type Resolver struct {
	records  types.RecordBrowser
	timeout  time.Duration
	dispatch func(func())
}

// New initializes a host-name resolver reading from the provided record
// browser. A non-positive timeout selects types.DefaultTimeout. Timeout
// termini are invoked through dispatch so they execute on the same loop as
// the record handlers; a nil dispatch invokes them synchronously.
func New(records types.RecordBrowser, timeout time.Duration, dispatch func(func())) *Resolver {
	if timeout <= 0 {
		timeout = types.DefaultTimeout
	}
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}

	return &Resolver{
		records:  records,
		timeout:  timeout,
		dispatch: dispatch,
	}
}

// Resolve begins a one-shot lookup of the host name to an address of the
// target family on the provided network path. The handler receives exactly
// one terminus unless the task is canceled first.
func (r *Resolver) Resolve(iface int, family types.Family, host string, target types.Family, h types.ResolveHandler) (types.ResolveTask, error) {
	qtype := dns.TypeA
	if target == types.FamilyINET6 {
		qtype = dns.TypeAAAA
	}

	t := &task{
		host:    host,
		handler: h,
	}

	sub, err := r.records.Subscribe(iface, family, dns.Question{
		Name:   dns.Fqdn(host),
		Qtype:  qtype,
		Qclass: dns.ClassINET,
	}, t.onRecord)
	if err != nil {
		return nil, err
	}

	t.Lock()
	if t.done {
		// The replayed cache already terminated the task
		t.Unlock()
		sub.Cancel()
		return t, nil
	}
	t.sub = sub
	t.timer = time.AfterFunc(r.timeout, func() { r.dispatch(t.onTimeout) })
	t.Unlock()

	return t, nil
}

type task struct {
	sync.Mutex
	host    string
	handler types.ResolveHandler
	sub     types.Subscription
	timer   *time.Timer
	done    bool
}

// Cancel stops the task without a terminus.
func (t *task) Cancel() {
	t.terminate(nil)
}

func (t *task) onRecord(iface int, family types.Family, op types.Op, rr dns.RR) {
	if op != types.OpNew {
		return
	}

	addr, ok := utils.AddressFromRecord(rr)
	if !ok {
		return
	}

	t.terminate(func() {
		t.handler(iface, family, types.HostFound, t.host, addr)
	})
}

func (t *task) onTimeout() {
	t.terminate(func() {
		t.handler(types.InterfaceAll, types.FamilyUnspec, types.HostFailure, t.host, nil)
	})
}

// terminate releases the subscription and timer exactly once, then fires the
// terminus if one was reached.
func (t *task) terminate(fire func()) {
	t.Lock()
	if t.done {
		t.Unlock()
		return
	}
	t.done = true
	sub := t.sub
	t.sub = nil
	timer := t.timer
	t.timer = nil
	t.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if sub != nil {
		sub.Cancel()
	}
	if fire != nil {
		fire()
	}
}
