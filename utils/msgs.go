// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"net"

	"github.com/miekg/dns"
)

// RemoveLastDot removes the '.' at the end of the provided FQDN.
func RemoveLastDot(name string) string {
	sz := len(name)
	if sz > 0 && name[sz-1] == '.' {
		return name[:sz-1]
	}
	return name
}

// QueryMsg generates a multicast DNS query message for the provided question.
// Multicast queries are never recursive and carry exactly one question.
func QueryMsg(q dns.Question) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(q.Name), q.Qtype)
	m.Question[0].Qclass = q.Qclass
	m.RecursionDesired = false
	return m
}

// AnswersByType returns only the records carried by the response matching the
// provided type, Answer and Additional sections included.
func AnswersByType(msg *dns.Msg, qtype uint16) []dns.RR {
	var subset []dns.RR

	for _, rr := range ResponseRecords(msg) {
		if rr.Header().Rrtype == qtype {
			subset = append(subset, rr)
		}
	}

	return subset
}

// ResponseRecords returns every resource record carried by a multicast DNS
// response, including the additional section that announcements use for
// address records.
func ResponseRecords(msg *dns.Msg) []dns.RR {
	if !msg.Response {
		return nil
	}

	var records []dns.RR
	records = append(records, msg.Answer...)
	records = append(records, msg.Extra...)

	var filtered []dns.RR
	for _, rr := range records {
		if rr.Header().Rrtype != dns.TypeOPT {
			filtered = append(filtered, rr)
		}
	}
	return filtered
}

// AddressFromRecord extracts the IP address from an A or AAAA record.
func AddressFromRecord(rr dns.RR) (addr net.IP, ok bool) {
	switch r := rr.(type) {
	case *dns.A:
		return r.A, true
	case *dns.AAAA:
		return r.AAAA, true
	}
	return nil, false
}
