// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"net"
	"time"

	"github.com/miekg/dns"
)

// InterfaceAll requests operation across every multicast-capable interface.
const InterfaceAll int = 0

// DefaultTimeout is the duration waited until a host-name resolution expires.
const DefaultTimeout = 2 * time.Second

// Family selects the address family of a network path or lookup target.
type Family int

const (
	FamilyUnspec Family = iota
	FamilyINET
	FamilyINET6
)

func (f Family) String() string {
	switch f {
	case FamilyINET:
		return "IPv4"
	case FamilyINET6:
		return "IPv6"
	}
	return "unspec"
}

// Role distinguishes discovery of plain resolvers from update-capable servers.
// It changes only the service label used to build the query key.
type Role int

const (
	RoleResolve Role = iota
	RoleUpdate
)

// Op is the direction of a record or server event.
type Op int

const (
	OpNew Op = iota
	OpRemove
)

func (o Op) String() string {
	if o == OpNew {
		return "new"
	}
	return "remove"
}

// ResolveEvent is the terminus of a one-shot host-name resolution task.
type ResolveEvent int

const (
	// HostFound carries the first address resolved for the host name.
	HostFound ResolveEvent = iota
	// HostFailure indicates the task ended without resolving an address.
	HostFailure
)

var (
	// ErrInvalidDomainName indicates a malformed input domain name.
	ErrInvalidDomainName = errors.New("invalid domain name")
	// ErrSubscriptionFailed indicates the record browser subscription could not be established.
	ErrSubscriptionFailed = errors.New("record subscription failed")
)

// RecordHandler receives add/remove notifications for records matching a subscription.
type RecordHandler func(iface int, family Family, op Op, rr dns.RR)

// RecordBrowser watches the record cache for records matching a query key and
// fires the handler for additions and removals, deduplicated by the cache layer.
type RecordBrowser interface {
	Subscribe(iface int, family Family, q dns.Question, h RecordHandler) (Subscription, error)
}

// Subscription is an active record-browser registration.
type Subscription interface {
	// Cancel stops delivery; no events arrive after Cancel returns.
	Cancel()
}

// ResolveHandler receives the single terminus of a resolution task.
type ResolveHandler func(iface int, family Family, ev ResolveEvent, host string, addr net.IP)

// HostResolver performs one-shot asynchronous host-name to address lookups.
type HostResolver interface {
	Resolve(iface int, family Family, host string, target Family, h ResolveHandler) (ResolveTask, error)
}

// ResolveTask is an in-flight host-name resolution.
type ResolveTask interface {
	// Cancel stops the task; its handler is never invoked after Cancel returns.
	Cancel()
}

// Browser is the client-facing handle held in the server registry.
type Browser interface {
	Close()
}

// Server is the owning context shared by all browsers: the record browser and
// host resolver it wires together, a registry of live browsers, and a
// process-wide slot holding the most recent construction error.
type Server interface {
	Records() RecordBrowser
	Hosts() HostResolver
	Register(b Browser)
	Deregister(b Browser)
	SetErr(err error)
	Err() error
}
