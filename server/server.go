// Copyright © by Jeff Foley 2017-2025. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package server owns the pieces every browser shares: the multicast
// transport, the record cache, the host resolver, a registry of live
// browsers, and the error slot. All cache and resolver callbacks are
// serialized onto a single event-loop goroutine.
package server

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/caffix/discover/cache"
	"github.com/caffix/discover/conn"
	"github.com/caffix/discover/resolver"
	"github.com/caffix/discover/types"
	"github.com/caffix/queue"
	"github.com/miekg/dns"
)

// Server is the owning context for DNS server discovery.
type Server struct {
	sync.Mutex
	done     chan struct{}
	log      *log.Logger
	queue    queue.Queue
	errno    error
	browsers map[types.Browser]struct{}
	cache    *cache.Cache
	conn     *conn.Conn
	hosts    *resolver.Resolver
}

// New initializes the discovery context. qps bounds outbound questions per
// second across all browsers; zero or below means unbounded. A non-positive
// timeout selects types.DefaultTimeout for host-name resolutions.
func New(qps int, timeout time.Duration, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Server{
		done:     make(chan struct{}, 1),
		log:      logger,
		queue:    queue.NewQueue(),
		browsers: make(map[types.Browser]struct{}),
	}
	s.cache = cache.New(s.schedule, s.sendQuestion)
	s.hosts = resolver.New(s.cache, timeout, s.schedule)

	c, err := conn.New(qps, s.cache.Put, logger)
	if err != nil {
		s.cache.Close()
		close(s.done)
		return nil, err
	}
	s.conn = c

	go s.loop()
	return s, nil
}

// Close shuts down every remaining browser, the resolver wiring, the record
// cache, and the transport. It is safe to call more than once.
func (s *Server) Close() {
	select {
	case <-s.done:
		return
	default:
	}

	s.Lock()
	all := make([]types.Browser, 0, len(s.browsers))
	for b := range s.browsers {
		all = append(all, b)
	}
	s.Unlock()

	for _, b := range all {
		b.Close()
	}

	s.cache.Close()
	if s.conn != nil {
		s.conn.Close()
	}
	close(s.done)
}

// Records returns the record browser backed by the multicast cache.
func (s *Server) Records() types.RecordBrowser { return s.cache }

// Hosts returns the host-name resolver.
func (s *Server) Hosts() types.HostResolver { return s.hosts }

// Register inserts a browser into the registry.
func (s *Server) Register(b types.Browser) {
	s.Lock()
	defer s.Unlock()

	s.browsers[b] = struct{}{}
}

// Deregister removes a browser from the registry.
func (s *Server) Deregister(b types.Browser) {
	s.Lock()
	defer s.Unlock()

	delete(s.browsers, b)
}

// SetErr records the most recent construction failure.
func (s *Server) SetErr(err error) {
	s.Lock()
	defer s.Unlock()

	s.errno = err
}

// Err returns the most recent construction failure.
func (s *Server) Err() error {
	s.Lock()
	defer s.Unlock()

	return s.errno
}

// schedule queues a callback for execution on the event loop.
func (s *Server) schedule(fn func()) {
	select {
	case <-s.done:
		return
	default:
	}
	s.queue.Append(fn)
}

func (s *Server) sendQuestion(q dns.Question) {
	s.Lock()
	c := s.conn
	s.Unlock()

	if c != nil {
		c.Send(q)
	}
}

// loop executes scheduled callbacks one at a time, which is what guarantees
// that no two callbacks for the same browser ever run concurrently.
func (s *Server) loop() {
loop:
	for {
		select {
		case <-s.done:
			break loop
		case <-s.queue.Signal():
		}

		for {
			element, found := s.queue.Next()
			if !found {
				break
			}
			if fn, ok := element.(func()); ok {
				fn()
			}
		}
	}
	// callbacks queued after shutdown began are dropped
	s.queue.Process(func(element interface{}) {})
}
