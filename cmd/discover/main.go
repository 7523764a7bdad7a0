// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/caffix/discover/browse"
	"github.com/caffix/discover/server"
	"github.com/caffix/discover/types"
)

const (
	defaultDomain  string = "local"
	defaultTimeout int    = 2000
)

type params struct {
	Log     *log.Logger
	Domain  string
	Role    types.Role
	Target  types.Family
	Iface   int
	QPS     int
	Timeout time.Duration
	LogFile *os.File
	Help    bool
}

func main() {
	p, buf, err := ObtainParams(os.Args[1:])
	if err != nil {
		msg := err.Error()
		if buf != nil {
			msg = buf.String()
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
	if p.Help && buf != nil {
		fmt.Fprintf(os.Stderr, "Usage: %s %s\n%s\n", path.Base(os.Args[0]), "[options]", buf.String())
		return
	}

	srv, err := server.New(p.QPS, p.Timeout, p.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start the discovery server: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()

	b, err := browse.New(srv, p.Iface, types.FamilyUnspec, p.Domain, p.Role, p.Target,
		func(b *browse.Browser, iface int, family types.Family, op types.Op, host string, addr net.IP, port uint16) {
			sign := "+"
			if op == types.OpRemove {
				sign = "-"
			}
			fmt.Printf("%s %s %s:%d (interface %d, %s)\n", sign, host, addr, port, iface, family)
		})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to browse for DNS servers: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
}

func ObtainParams(args []string) (*params, *bytes.Buffer, error) {
	var timeout int
	var update, inet6 bool
	var lpath string

	buf := new(bytes.Buffer)
	flags := flag.NewFlagSet("discover", flag.ContinueOnError)
	flags.SetOutput(buf)

	p := new(params)
	flags.BoolVar(&p.Help, "h", false, "Print usage information")
	flags.BoolVar(&update, "u", false, "Discover update-capable DNS servers instead of resolvers")
	flags.BoolVar(&inet6, "6", false, "Resolve discovered servers to IPv6 addresses")
	flags.StringVar(&p.Domain, "d", defaultDomain, "Domain to browse for DNS server announcements")
	flags.IntVar(&p.Iface, "i", types.InterfaceAll, "Index of the interface to browse on (0 for all)")
	flags.IntVar(&p.QPS, "qps", 0, "Maximum number of questions sent per second")
	flags.IntVar(&timeout, "timeout", defaultTimeout, "Milliseconds to wait before a host resolution times out")
	flags.StringVar(&lpath, "l", "", "Errors are written to the specified log file (default stderr)")
	if err := flags.Parse(args); err != nil {
		return nil, buf, fmt.Errorf("%v", err)
	}
	if p.Help {
		flags.PrintDefaults()
		return p, buf, nil
	}

	p.Role = types.RoleResolve
	if update {
		p.Role = types.RoleUpdate
	}
	p.Target = types.FamilyINET
	if inet6 {
		p.Target = types.FamilyINET6
	}
	p.Timeout = time.Duration(timeout) * time.Millisecond

	p.LogFile = os.Stderr
	if lpath != "" {
		f, err := os.OpenFile(lpath, os.O_RDWR|os.O_CREATE, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open the log file %s: %v", lpath, err)
		}
		p.LogFile = f
	}
	p.Log = log.New(p.LogFile, "", log.Lmicroseconds)

	return p, nil, nil
}
