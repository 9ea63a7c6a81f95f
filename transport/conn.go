// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	corehttp "github.com/go-corehttp/corehttp-go"
)

// ConnOptions configures [NewConnTransport].
type ConnOptions struct {
	// ConnectionTimeout bounds dialing, including TLS handshake.
	// Defaults to 10s.
	ConnectionTimeout time.Duration

	// MaxIdlePerHost caps pooled idle connections per host. Defaults to 4.
	MaxIdlePerHost int

	// TLSConfig overrides the TLS client configuration for https URLs.
	TLSConfig *tls.Config
}

func (o *ConnOptions) withDefaults() ConnOptions {
	out := ConnOptions{}
	if o != nil {
		out = *o
	}
	if out.ConnectionTimeout <= 0 {
		out.ConnectionTimeout = 10 * time.Second
	}
	if out.MaxIdlePerHost <= 0 {
		out.MaxIdlePerHost = 4
	}
	return out
}

// ConnTransport is a minimal HTTP/1.1 transport over raw connections with
// its own small keep-alive pool. It performs strict content-length
// accounting: a response body cut short by the peer is reported as
// *[corehttp.IncompleteBodyError], never silently truncated. It implements
// the same contract as [HTTPTransport] so a pipeline can run on either.
type ConnTransport struct {
	opts ConnOptions

	mu     sync.Mutex
	idle   map[string][]*persistConn
	closed bool
}

var _ corehttp.Transport = (*ConnTransport)(nil)

// persistConn is one reusable connection. The bufio.Reader must stay with
// the connection: it may hold buffered bytes of the next response.
type persistConn struct {
	conn net.Conn
	br   *bufio.Reader
	key  string
}

// NewConnTransport creates a [ConnTransport]. Pass nil for defaults.
func NewConnTransport(opts *ConnOptions) *ConnTransport {
	return &ConnTransport{
		opts: opts.withDefaults(),
		idle: make(map[string][]*persistConn),
	}
}

// Do implements [corehttp.Transport].
func (t *ConnTransport) Do(ctx context.Context, req *corehttp.Request) (*http.Response, error) {
	u := req.Raw().URL
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &corehttp.TransportError{Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	addr := hostAddr(u.Scheme, u.Host)
	key := u.Scheme + "://" + addr

	// A pooled connection may have gone stale while idle; retry the round
	// trip once on a fresh dial before reporting failure.
	reused, pc, err := t.getConn(ctx, key, u.Scheme, addr)
	if err != nil {
		return nil, err
	}
	resp, err := t.roundTrip(ctx, pc, req)
	if err != nil && reused {
		if rwErr := req.RewindBody(); rwErr == nil {
			if pc, dialErr := t.dialConn(ctx, key, u.Scheme, addr); dialErr == nil {
				resp, err = t.roundTrip(ctx, pc, req)
			}
		}
	}
	return resp, err
}

func (t *ConnTransport) roundTrip(ctx context.Context, pc *persistConn, req *corehttp.Request) (*http.Response, error) {
	if dl, ok := ctx.Deadline(); ok {
		pc.conn.SetDeadline(dl)
	} else {
		pc.conn.SetDeadline(time.Time{})
	}
	// Unblock pending reads and writes if the caller gives up.
	stopWatch := context.AfterFunc(ctx, func() {
		pc.conn.SetDeadline(time.Now())
	})

	if err := req.Raw().Write(pc.conn); err != nil {
		stopWatch()
		pc.conn.Close()
		return nil, t.wrapErr(ctx, err)
	}
	resp, err := http.ReadResponse(pc.br, req.Raw())
	if err != nil {
		stopWatch()
		pc.conn.Close()
		return nil, t.wrapErr(ctx, err)
	}
	reusable := !resp.Close
	resp.Body = newLengthCheckedBody(resp.Body, resp.ContentLength, func(fullyRead bool) {
		stopWatch()
		if fullyRead && reusable {
			pc.conn.SetDeadline(time.Time{})
			t.putConn(pc)
		} else {
			pc.conn.Close()
		}
	})
	return resp, nil
}

func (t *ConnTransport) wrapErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &corehttp.TransportError{Err: err}
}

// getConn pops an idle connection or dials a new one. reused tells the
// caller whether a write failure may be a stale-connection artifact.
func (t *ConnTransport) getConn(ctx context.Context, key, scheme, addr string) (reused bool, pc *persistConn, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false, nil, ErrClosed
	}
	if conns := t.idle[key]; len(conns) > 0 {
		pc = conns[len(conns)-1]
		t.idle[key] = conns[:len(conns)-1]
		t.mu.Unlock()
		return true, pc, nil
	}
	t.mu.Unlock()

	pc, err = t.dialConn(ctx, key, scheme, addr)
	return false, pc, err
}

func (t *ConnTransport) dialConn(ctx context.Context, key, scheme, addr string) (*persistConn, error) {
	d := net.Dialer{Timeout: t.opts.ConnectionTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &corehttp.TransportError{Err: err}
	}
	if scheme == "https" {
		cfg := t.opts.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			host, _, splitErr := net.SplitHostPort(addr)
			if splitErr != nil {
				host = addr
			}
			cfg.ServerName = host
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &corehttp.TransportError{Err: err}
		}
		conn = tlsConn
	}
	return &persistConn{conn: conn, br: bufio.NewReader(conn), key: key}, nil
}

func (t *ConnTransport) putConn(pc *persistConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || len(t.idle[pc.key]) >= t.opts.MaxIdlePerHost {
		pc.conn.Close()
		return
	}
	t.idle[pc.key] = append(t.idle[pc.key], pc)
}

// Close implements [corehttp.Transport]. Idle connections are closed
// immediately; in-flight connections are closed when their response bodies
// are closed.
func (t *ConnTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	var firstErr error
	for _, conns := range t.idle {
		for _, pc := range conns {
			if err := pc.conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	t.idle = make(map[string][]*persistConn)
	return firstErr
}

func hostAddr(scheme, host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	if scheme == "https" {
		return net.JoinHostPort(host, "443")
	}
	return net.JoinHostPort(host, "80")
}
