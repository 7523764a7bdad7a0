// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package domains validates and normalizes multicast DNS domain names and
// builds the well-known query keys used to discover announced DNS servers.
package domains

import (
	"strings"

	"github.com/caffix/discover/types"
	"github.com/miekg/dns"
)

const (
	maxLabelLen  = 63
	maxDomainLen = 255

	serviceResolve = "_domain._udp"
	serviceUpdate  = "_dns-update._udp"
)

// DefaultDomain is the domain browsed when the caller does not provide one.
const DefaultDomain = "local"

// IsValid reports whether the name satisfies multicast DNS naming syntax:
// non-empty labels of at most 63 octets, a total length of at most 255
// octets, and well-formed "\.", "\\" and "\DDD" escape sequences.
func IsValid(name string) bool {
	_, err := parseLabels(name)
	return err == nil
}

// Normalize returns the canonical escaped form of the name: labels joined by
// unescaped dots, with '.' and '\' backslash-escaped and non-printable octets
// rendered as decimal "\DDD" escapes. The trailing dot is dropped.
func Normalize(name string) (string, error) {
	labels, err := parseLabels(name)
	if err != nil {
		return "", err
	}

	escaped := make([]string, len(labels))
	for i, label := range labels {
		escaped[i] = escapeLabel(label)
	}
	return strings.Join(escaped, "."), nil
}

// ServerQuery derives the query key that matches service announcements for
// DNS servers of the provided role within the domain. An empty domain selects
// DefaultDomain. The key names the SRV record type in the Internet class.
func ServerQuery(domain string, role types.Role) (dns.Question, error) {
	if domain == "" {
		domain = DefaultDomain
	}

	n, err := Normalize(domain)
	if err != nil {
		return dns.Question{}, err
	}

	service := serviceResolve
	if role == types.RoleUpdate {
		service = serviceUpdate
	}

	return dns.Question{
		Name:   service + "." + n + ".",
		Qtype:  dns.TypeSRV,
		Qclass: dns.ClassINET,
	}, nil
}

// parseLabels splits the name into unescaped labels, enforcing the length
// and escape-syntax rules.
func parseLabels(name string) ([]string, error) {
	if name == "" || name == "." || len(name) > maxDomainLen {
		return nil, types.ErrInvalidDomainName
	}

	// A single trailing dot is permitted and ignored.
	var labels []string
	for rest := name; rest != ""; {
		var label string
		var err error

		label, rest, err = nextLabel(rest)
		if err != nil {
			return nil, err
		}
		if len(label) == 0 || len(label) > maxLabelLen {
			return nil, types.ErrInvalidDomainName
		}
		labels = append(labels, label)
	}

	if len(labels) == 0 {
		return nil, types.ErrInvalidDomainName
	}
	return labels, nil
}

// nextLabel consumes one unescaped label from the front of the name.
func nextLabel(s string) (label, rest string, err error) {
	var b strings.Builder

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '.':
			return b.String(), s[i+1:], nil
		case '\\':
			i++
			if i >= len(s) {
				return "", "", types.ErrInvalidDomainName
			}
			if isDigit(s[i]) {
				if i+2 >= len(s) || !isDigit(s[i+1]) || !isDigit(s[i+2]) {
					return "", "", types.ErrInvalidDomainName
				}
				v := int(s[i]-'0')*100 + int(s[i+1]-'0')*10 + int(s[i+2]-'0')
				if v > 255 {
					return "", "", types.ErrInvalidDomainName
				}
				b.WriteByte(byte(v))
				i += 2
			} else {
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), "", nil
}

func escapeLabel(label string) string {
	var b strings.Builder

	for i := 0; i < len(label); i++ {
		switch c := label[i]; {
		case c == '.' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c >= 0x7f:
			b.WriteByte('\\')
			b.WriteByte('0' + c/100)
			b.WriteByte('0' + (c/10)%10)
			b.WriteByte('0' + c%10)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
