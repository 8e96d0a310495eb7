// Package replication opens a replica connection to a Redis-compatible
// server and performs the handshake that precedes a full RDB transfer:
// AUTH, PING, REPLCONF, PSYNC. After a +FULLRESYNC reply the returned
// io.Reader is positioned at the first byte of the RDB magic string, ready
// for rdb.Decode/rdb.ReadFile-style consumption. The decoder itself never
// imports this package; it only ever consumes an io.Reader.
package replication

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Options configures Dial.
type Options struct {
	Password string
	// ListeningPort is announced via REPLCONF so the master can address
	// this replica; it does not need to be a port anything listens on
	// for a one-shot snapshot pull.
	ListeningPort int
	// MaxBytesPerSec throttles the post-handshake reader when > 0.
	MaxBytesPerSec int
	DialTimeout    time.Duration
}

// Session records what the handshake learned about the master's stream.
type Session struct {
	ReplID string
	Offset int64
}

// Dial performs the handshake over a fresh TCP connection to addr and
// returns a reader positioned at the RDB payload the master sends next.
func Dial(ctx context.Context, addr string, opts Options) (*bufio.Reader, *Session, error) {
	dialer := net.Dialer{Timeout: orDefault(opts.DialTimeout, 10*time.Second)}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	r := bufio.NewReader(conn)

	if opts.Password != "" {
		if err := sendCommand(conn, r, "AUTH", opts.Password); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := sendCommand(conn, r, "PING"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("PING: %w", err)
	}

	port := opts.ListeningPort
	if port == 0 {
		port = 6380
	}
	if err := sendCommand(conn, r, "REPLCONF", "listening-port", strconv.Itoa(port)); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("REPLCONF listening-port: %w", err)
	}
	if host, _, err := net.SplitHostPort(conn.LocalAddr().String()); err == nil {
		if err := sendCommand(conn, r, "REPLCONF", "ip-address", host); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("REPLCONF ip-address: %w", err)
		}
	}
	if err := sendCommand(conn, r, "REPLCONF", "capa", "eof"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("REPLCONF capa eof: %w", err)
	}
	if err := sendCommand(conn, r, "REPLCONF", "capa", "psync2"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("REPLCONF capa psync2: %w", err)
	}

	if err := writeCommand(conn, "PSYNC", "?", "-1"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("PSYNC: %w", err)
	}

	line, err := readSimpleLine(r)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("reading PSYNC reply: %w", err)
	}

	session, err := parseFullResync(line)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	if opts.MaxBytesPerSec > 0 {
		limiter := rate.NewLimiter(rate.Limit(opts.MaxBytesPerSec), opts.MaxBytesPerSec)
		return bufio.NewReader(newLimitedReader(r, limiter)), session, nil
	}

	return r, session, nil
}

func parseFullResync(line string) (*Session, error) {
	if strings.HasPrefix(line, "+CONTINUE") {
		return nil, fmt.Errorf("partial resync is not supported, master replied %q", line)
	}

	if !strings.HasPrefix(line, "+FULLRESYNC") {
		return nil, fmt.Errorf("unexpected PSYNC reply %q", line)
	}

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return nil, fmt.Errorf("malformed FULLRESYNC reply %q", line)
	}

	offset, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed FULLRESYNC offset in %q: %w", line, err)
	}

	return &Session{ReplID: fields[1], Offset: offset}, nil
}

// sendCommand writes a RESP array command and requires a +OK/+PONG style
// simple-string reply, matching the liveness-check convention common
// replica clients use before trusting the real handshake.
func sendCommand(conn net.Conn, r *bufio.Reader, cmd string, args ...string) error {
	if err := writeCommand(conn, cmd, args...); err != nil {
		return err
	}

	line, err := readSimpleLine(r)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "+") {
		return fmt.Errorf("unexpected reply %q", line)
	}
	return nil
}

func writeCommand(conn net.Conn, cmd string, args ...string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", 1+len(args))
	writeBulk(&b, cmd)
	for _, a := range args {
		writeBulk(&b, a)
	}
	_, err := conn.Write([]byte(b.String()))
	return err
}

func writeBulk(b *strings.Builder, s string) {
	fmt.Fprintf(b, "$%d\r\n%s\r\n", len(s), s)
}

// readSimpleLine reads one \r\n-terminated line. PSYNC's reply is always a
// line, never a length-prefixed bulk read of a fixed size - the master
// chooses how many bytes precede the RDB payload and a fixed-size read
// would either truncate the line or swallow RDB bytes.
func readSimpleLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
