package replication

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeMaster accepts one connection and replies +OK/+PONG to every command
// line it reads until it sees PSYNC, at which point it sends the given
// psyncReply and then the RDB payload bytes.
func fakeMaster(t *testing.T, psyncReply string, rdbPayload []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()

		r := bufio.NewReader(conn)
		for {
			_, isPsync, err := readCommandName(r)
			if err != nil {
				return
			}
			if isPsync {
				conn.Write([]byte(psyncReply + "\r\n"))
				conn.Write(rdbPayload)
				return
			}
			conn.Write([]byte("+OK\r\n"))
		}
	}()

	return ln.Addr().String()
}

// readCommandName reads one RESP array command and reports whether its
// command name was PSYNC, draining exactly the bytes it consumed.
func readCommandName(r *bufio.Reader) (string, bool, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", false, err
	}
	if len(line) == 0 || line[0] != '*' {
		return "", false, io.ErrUnexpectedEOF
	}

	n, err := parseRESPCount(line)
	if err != nil {
		return "", false, err
	}

	var name string
	for i := 0; i < n; i++ {
		bulkHeader, err := r.ReadString('\n')
		if err != nil {
			return "", false, err
		}
		size, err := parseRESPCount(bulkHeader)
		if err != nil {
			return "", false, err
		}

		buf := make([]byte, size+2) // +2 for trailing \r\n
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", false, err
		}
		if i == 0 {
			name = string(buf[:size])
		}
	}

	return name, name == "PSYNC", nil
}

// parseRESPCount parses the count out of a "*3\r\n" or "$4\r\n" line.
func parseRESPCount(line string) (int, error) {
	return strconv.Atoi(strings.TrimRight(line[1:], "\r\n"))
}

func TestDialHandshakeFullResync(t *testing.T) {
	rdbPayload := []byte("REDIS0012fake-rdb-bytes")
	addr := fakeMaster(t, "+FULLRESYNC abcd1234 10", rdbPayload)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, session, err := Dial(ctx, addr, Options{})
	require.NoError(t, err)
	require.Equal(t, "abcd1234", session.ReplID)
	require.Equal(t, int64(10), session.Offset)

	got := make([]byte, len(rdbPayload))
	_, err = io.ReadFull(r, got)
	require.NoError(t, err)
	require.Equal(t, rdbPayload, got)
}

func TestDialRejectsPartialResync(t *testing.T) {
	addr := fakeMaster(t, "+CONTINUE", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := Dial(ctx, addr, Options{})
	require.Error(t, err)
}
