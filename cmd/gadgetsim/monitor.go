package main

import (
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/nullstream/usbxgadget/usbclass/x360"
)

// monitorPBKDF2Salt and monitorPBKDF2Iterations ground the monitor
// channel's key derivation in the same PBKDF2-over-SHA256 scheme the
// teacher's auth package uses for its API password, with a distinct salt
// so the two derivations can never collide.
const (
	monitorPBKDF2Salt       = "gadgetsim-monitor-v1"
	monitorPBKDF2Iterations = 100000
)

// deriveMonitorKey stretches a passphrase into a 32-byte chacha20poly1305
// key. An empty passphrase still derives a (weak, well-known) key rather
// than failing, since the monitor channel is opt-in diagnostic tooling,
// not an authentication boundary.
func deriveMonitorKey(passphrase string) ([]byte, error) {
	return pbkdf2.Key(sha256.New, passphrase, []byte(monitorPBKDF2Salt), monitorPBKDF2Iterations, 32)
}

// monitorConn wraps a single accepted connection the way
// internal/server/api/auth.Conn wraps the USB-IP control connection:
// length-prefixed AEAD frames with a per-direction nonce counter. Only the
// write direction is used; the monitor channel is output-only.
type monitorConn struct {
	net.Conn
	aead    cipher.AEAD
	sendCtr uint64
	mu      sync.Mutex
}

func wrapMonitorConn(conn net.Conn, key []byte) (*monitorConn, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &monitorConn{Conn: conn, aead: aead}, nil
}

func (c *monitorConn) writeFrame(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce := make([]byte, 12)
	binary.BigEndian.PutUint64(nonce[4:], c.sendCtr)
	c.sendCtr++

	ct := c.aead.Seal(nil, nonce, p, nil)
	length := uint32(len(nonce) + len(ct))

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], length)

	if _, err := c.Conn.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := c.Conn.Write(nonce); err != nil {
		return err
	}
	_, err := c.Conn.Write(ct)
	return err
}

// Monitor streams decoded XInput and HID reports to at most one connected
// viewer over an encrypted loopback TCP listener. It exists purely as
// diagnostic tooling for a companion viewer process; the driver core never
// depends on it (SPEC_FULL.md section F).
type Monitor struct {
	logger *slog.Logger
	key    []byte

	mu   sync.Mutex
	conn *monitorConn
}

// NewMonitor starts listening on addr and returns a Monitor that accepts
// one viewer connection at a time, replacing any prior connection.
func NewMonitor(addr string, passphrase string, logger *slog.Logger) (*Monitor, net.Listener, error) {
	key, err := deriveMonitorKey(passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("monitor: deriving key: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("monitor: listening on %s: %w", addr, err)
	}
	m := &Monitor{logger: logger, key: key}
	go m.acceptLoop(ln)
	return m, ln, nil
}

func (m *Monitor) acceptLoop(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		wrapped, err := wrapMonitorConn(c, m.key)
		if err != nil {
			m.logger.Warn("monitor: failed to wrap connection", "error", err)
			_ = c.Close()
			continue
		}
		m.mu.Lock()
		if m.conn != nil {
			_ = m.conn.Close()
		}
		m.conn = wrapped
		m.mu.Unlock()
		m.logger.Info("monitor: viewer connected", "remote", c.RemoteAddr())
	}
}

func (m *Monitor) publish(frame []byte) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.writeFrame(frame); err != nil {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		_ = conn.Close()
	}
}

// frame kinds for the monitor channel's tiny self-describing wire format:
// a one-byte kind tag followed by a kind-specific payload.
const (
	frameKindX360 byte = 1
	frameKindHID  byte = 2
)

// PublishX360Report implements cmd.ReportPublisher.
func (m *Monitor) PublishX360Report(itf uint8, c x360.Controls) {
	frame := append([]byte{frameKindX360, itf}, x360.EncodeReport(c)...)
	m.publish(frame)
}

// PublishHIDReport implements cmd.ReportPublisher.
func (m *Monitor) PublishHIDReport(itf uint8, reportID uint8, data []byte) {
	frame := append([]byte{frameKindHID, itf, reportID}, data...)
	m.publish(frame)
}
