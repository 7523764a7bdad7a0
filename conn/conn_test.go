// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"net"
	"testing"

	"github.com/caffix/discover/types"
	"github.com/miekg/dns"
)

func TestHandleResponse(t *testing.T) {
	type seen struct {
		iface  int
		family types.Family
		name   string
	}

	var records []seen
	c := &Conn{
		sink: func(iface int, family types.Family, rr dns.RR) {
			records = append(records, seen{iface, family, rr.Header().Name})
		},
		ifaces: &registry{lookup: make(map[int]*net.Interface)},
	}
	c.ifaces.Add(&net.Interface{Index: 3, Name: "eth0"})

	m := new(dns.Msg)
	m.SetQuestion("_domain._udp.local.", dns.TypeSRV)
	m.Response = true
	m.Answer = append(m.Answer, &dns.SRV{
		Hdr:    dns.RR_Header{Name: "_domain._udp.local.", Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 120},
		Target: "ns.local.",
		Port:   53,
	})
	m.Extra = append(m.Extra, &dns.A{
		Hdr: dns.RR_Header{Name: "ns.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP("192.0.2.9"),
	})
	m.Extra = append(m.Extra, &dns.TXT{
		Hdr: dns.RR_Header{Name: "ns.local.", Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 120},
		Txt: []string{"noise"},
	})

	packet, err := m.Pack()
	if err != nil {
		t.Fatalf("failed to pack the response: %v", err)
	}

	c.handleResponse(3, types.FamilyINET, packet)
	if len(records) != 2 {
		t.Fatalf("expected the SRV and A records only, got %d", len(records))
	}
	if records[0].iface != 3 || records[0].family != types.FamilyINET || records[0].name != "_domain._udp.local." {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].name != "ns.local." {
		t.Errorf("unexpected second record: %+v", records[1])
	}

	// traffic on interfaces outside the registry is dropped
	c.handleResponse(9, types.FamilyINET, packet)
	if len(records) != 2 {
		t.Errorf("a response from an unjoined interface was delivered")
	}

	// queries and garbage are ignored
	c.handleResponse(3, types.FamilyINET, []byte{0x01, 0x02})
	q := new(dns.Msg)
	q.SetQuestion("ns.local.", dns.TypeA)
	packet, _ = q.Pack()
	c.handleResponse(3, types.FamilyINET, packet)
	if len(records) != 2 {
		t.Errorf("non-response packets must be ignored, got %d records", len(records))
	}
}
