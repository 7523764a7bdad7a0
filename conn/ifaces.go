// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"net"
	"sync"
)

// registry tracks the multicast-capable interfaces the transport operates on,
// with lookup by interface index.
type registry struct {
	sync.Mutex
	list   []*net.Interface
	lookup map[int]*net.Interface
}

func newRegistry() *registry {
	r := &registry{lookup: make(map[int]*net.Interface)}

	ifaces, err := net.Interfaces()
	if err != nil {
		return r
	}

	for i := range ifaces {
		ifi := ifaces[i]
		if eligible(&ifi) {
			r.Add(&ifi)
		}
	}
	return r
}

// eligible reports whether the interface can carry multicast DNS traffic.
func eligible(ifi *net.Interface) bool {
	if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
		return false
	}
	return ifi.Flags&net.FlagPointToPoint == 0
}

func (r *registry) Add(ifi *net.Interface) {
	r.Lock()
	defer r.Unlock()

	if _, found := r.lookup[ifi.Index]; found {
		return
	}
	r.list = append(r.list, ifi)
	r.lookup[ifi.Index] = ifi
}

func (r *registry) Remove(index int) {
	r.Lock()
	defer r.Unlock()

	if _, found := r.lookup[index]; !found {
		return
	}
	delete(r.lookup, index)

	for i, ifi := range r.list {
		if ifi.Index == index {
			r.list = append(r.list[:i], r.list[i+1:]...)
			break
		}
	}
}

func (r *registry) Lookup(index int) *net.Interface {
	r.Lock()
	defer r.Unlock()

	return r.lookup[index]
}

func (r *registry) All() []*net.Interface {
	r.Lock()
	defer r.Unlock()

	all := make([]*net.Interface, len(r.list))
	copy(all, r.list)
	return all
}
