package smtp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks just enough SMTP for net/smtp and records what it got
type fakeServer struct {
	ln       net.Listener
	rejectTo string

	mu       sync.Mutex
	rcpts    []string
	messages []string
	quits    int
}

func startFakeServer(t *testing.T, rejectTo string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln, rejectTo: rejectTo}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { conn.Write([]byte(line + "\r\n")) }

	reply("220 localhost ESMTP fake")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)

		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250-localhost")
			reply("250 8BITMIME")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			addr := strings.Trim(cmd[len("RCPT TO:"):], "<> ")
			if addr == s.rejectTo {
				reply("550 mailbox unavailable")
				continue
			}
			s.mu.Lock()
			s.rcpts = append(s.rcpts, addr)
			s.mu.Unlock()
			reply("250 OK")
		case upper == "DATA":
			reply("354 go ahead")
			var sb strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				sb.WriteString(l)
			}
			s.mu.Lock()
			s.messages = append(s.messages, sb.String())
			s.mu.Unlock()
			reply("250 queued")
		case upper == "QUIT":
			s.mu.Lock()
			s.quits++
			s.mu.Unlock()
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestSender_Send(t *testing.T) {
	srv := startFakeServer(t, "")
	sender := NewSender(Config{Host: "127.0.0.1", Port: srv.port(), From: "noreply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sender.Send(ctx, "alice@example.com", "A file for you", "Open it here:\nhttps://share.example.com/s/abc\n")
	require.NoError(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []string{"alice@example.com"}, srv.rcpts)
	require.Len(t, srv.messages, 1)
	assert.Contains(t, srv.messages[0], "To: alice@example.com\r\n")
	assert.Contains(t, srv.messages[0], "Subject: A file for you\r\n")
	assert.Contains(t, srv.messages[0], "https://share.example.com/s/abc\r\n")
	assert.Equal(t, 1, srv.quits)
}

func TestSender_RecipientRejected(t *testing.T) {
	srv := startFakeServer(t, "bob@example.com")
	sender := NewSender(Config{Host: "127.0.0.1", Port: srv.port(), From: "noreply@example.com"})

	err := sender.Send(context.Background(), "bob@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550")
}

func TestSender_NotConfigured(t *testing.T) {
	err := NewSender(Config{}).Send(context.Background(), "a@example.com", "s", "b")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSender_RejectsHeaderInjection(t *testing.T) {
	sender := NewSender(Config{Host: "127.0.0.1", Port: 25, From: "noreply@example.com"})
	err := sender.Send(context.Background(), "a@example.com\r\nBcc: x@example.com", "s", "b")
	assert.Error(t, err)
}

func TestSender_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	sender := NewSender(Config{Host: "127.0.0.1", Port: port, From: "noreply@example.com"})
	err = sender.Send(context.Background(), "a@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP dial")
}

func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	msg := string(buildMessage("noreply@example.com", "a@example.com", "Fichier partagé\r\nBcc: x", "line1\nline2", now))

	assert.NotContains(t, msg, "\r\nBcc:")
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "line1\r\nline2")
	assert.Contains(t, msg, "Date: "+now.Format(time.RFC1123Z))
	assert.True(t, strings.HasPrefix(msg, "From: noreply@example.com\r\n"))
}
