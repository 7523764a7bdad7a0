// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package domains

import (
	"errors"
	"strings"
	"testing"

	"github.com/caffix/discover/types"
	"github.com/miekg/dns"
)

func TestIsValid(t *testing.T) {
	valid := []string{
		"local",
		"local.",
		"example.com",
		"with\\.dot.local",
		"with\\\\backslash.local",
		"with\\032space.local",
		strings.Repeat("a", 63) + ".local",
	}
	for _, name := range valid {
		if !IsValid(name) {
			t.Errorf("%q should be considered valid", name)
		}
	}

	invalid := []string{
		"",
		".",
		"..",
		"a..b",
		"trailing\\",
		"bad\\99escape.local",
		"big\\999escape.local",
		strings.Repeat("a", 64) + ".local",
		strings.Repeat("a.", 200) + strings.Repeat("b", 60),
	}
	for _, name := range invalid {
		if IsValid(name) {
			t.Errorf("%q should be considered invalid", name)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"local", "local"},
		{"local.", "local"},
		{"Example.COM", "Example.COM"},
		{"with\\.dot.local", "with\\.dot.local"},
		{"with\\046dot.local", "with\\.dot.local"},
		{"with\\032space.local", "with\\032space.local"},
	}

	for _, c := range cases {
		got, err := Normalize(c.in)
		if err != nil {
			t.Errorf("Normalize(%q) returned the error: %v", c.in, err)
		} else if got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	if _, err := Normalize("a..b"); !errors.Is(err, types.ErrInvalidDomainName) {
		t.Errorf("expected ErrInvalidDomainName, got %v", err)
	}
}

func TestServerQuery(t *testing.T) {
	q, err := ServerQuery("local", types.RoleResolve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Name != "_domain._udp.local." {
		t.Errorf("unexpected query name: %q", q.Name)
	}
	if q.Qtype != dns.TypeSRV || q.Qclass != dns.ClassINET {
		t.Errorf("unexpected query type or class: %v", q)
	}

	q, err = ServerQuery("", types.RoleUpdate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Name != "_dns-update._udp.local." {
		t.Errorf("unexpected query name: %q", q.Name)
	}

	if _, err := ServerQuery("not..valid", types.RoleResolve); !errors.Is(err, types.ErrInvalidDomainName) {
		t.Errorf("expected ErrInvalidDomainName, got %v", err)
	}
}
