// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"net"
	"testing"
)

func TestEligible(t *testing.T) {
	cases := []struct {
		name  string
		flags net.Flags
		want  bool
	}{
		{"up multicast", net.FlagUp | net.FlagMulticast, true},
		{"down", net.FlagMulticast, false},
		{"no multicast", net.FlagUp, false},
		{"point-to-point", net.FlagUp | net.FlagMulticast | net.FlagPointToPoint, false},
	}

	for _, c := range cases {
		ifi := &net.Interface{Index: 1, Name: c.name, Flags: c.flags}
		if got := eligible(ifi); got != c.want {
			t.Errorf("eligible(%s) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := &registry{lookup: make(map[int]*net.Interface)}

	eth0 := &net.Interface{Index: 2, Name: "eth0"}
	eth1 := &net.Interface{Index: 3, Name: "eth1"}
	r.Add(eth0)
	r.Add(eth1)
	r.Add(eth0)

	if all := r.All(); len(all) != 2 {
		t.Fatalf("expected 2 interfaces, got %d", len(all))
	}
	if got := r.Lookup(2); got != eth0 {
		t.Errorf("lookup by index returned the wrong interface: %v", got)
	}
	if got := r.Lookup(9); got != nil {
		t.Errorf("lookup of an unknown index should return nil, got %v", got)
	}

	r.Remove(2)
	r.Remove(2)
	if all := r.All(); len(all) != 1 || all[0] != eth1 {
		t.Errorf("removal left the registry inconsistent: %v", all)
	}
	if got := r.Lookup(2); got != nil {
		t.Errorf("the removed interface is still resolvable")
	}
}
