// Package messenger is a minimal TCP length-prefixed message channel used
// by bootstrapped containers to talk back to the process that started
// them. It is documented as an external collaborator rather than a core
// engine concern: nothing in pkg/containernet depends on it, but a
// bootstrapped binary (see pkg/bootstrap) is free to import it to
// establish a control channel with its parent.
//
// Frame layout: a 32-byte header holding a truncated SHA3-256 hash of the
// caller-supplied type name string (the first 16 bytes of the hash, zero-padded out
// to 32 bytes), then an 8-byte little-endian payload length, then the
// payload itself. The 32-byte header width is the wire contract; only the
// first 16 bytes of it are ever non-zero, since a 16-byte hash is
// considered sufficient collision resistance for type discrimination
// between a small, fixed set of message types over one connection.
package messenger

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/sha3"
)

const (
	hashFieldLen = 32
	hashUsedLen  = 16
	lenFieldLen  = 8
)

// typeHash returns the 32-byte header field for name: the first 16 bytes
// of SHA3-256(name), zero-padded to 32 bytes.
func typeHash(name string) [hashFieldLen]byte {
	sum := sha3.Sum256([]byte(name))
	var out [hashFieldLen]byte
	copy(out[:hashUsedLen], sum[:hashUsedLen])
	return out
}

// Messenger frames JSON-encoded messages over a net.Conn.
type Messenger struct {
	conn net.Conn
	r    *bufio.Reader
}

// New wraps conn for framed send/recv.
func New(conn net.Conn) *Messenger {
	return &Messenger{conn: conn, r: bufio.NewReader(conn)}
}

// Dial connects to addr and wraps the resulting connection.
func Dial(network, addr string) (*Messenger, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("messenger: dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// Close closes the underlying connection.
func (m *Messenger) Close() error { return m.conn.Close() }

// Send JSON-encodes v under a type-hash of typeName and writes the
// framed message.
func (m *Messenger) Send(typeName string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("messenger: encode %s: %w", typeName, err)
	}

	header := typeHash(typeName)
	var lenField [lenFieldLen]byte
	binary.LittleEndian.PutUint64(lenField[:], uint64(len(payload)))

	if _, err := m.conn.Write(header[:]); err != nil {
		return fmt.Errorf("messenger: write header: %w", err)
	}
	if _, err := m.conn.Write(lenField[:]); err != nil {
		return fmt.Errorf("messenger: write length: %w", err)
	}
	if _, err := m.conn.Write(payload); err != nil {
		return fmt.Errorf("messenger: write payload: %w", err)
	}
	return nil
}

// Recv reads one framed message, verifies its type-hash matches typeName,
// and JSON-decodes the payload into v.
func (m *Messenger) Recv(typeName string, v interface{}) error {
	var header [hashFieldLen]byte
	if _, err := io.ReadFull(m.r, header[:]); err != nil {
		return fmt.Errorf("messenger: read header: %w", err)
	}

	want := typeHash(typeName)
	if header != want {
		return fmt.Errorf("messenger: type mismatch: expected %s", typeName)
	}

	var lenField [lenFieldLen]byte
	if _, err := io.ReadFull(m.r, lenField[:]); err != nil {
		return fmt.Errorf("messenger: read length: %w", err)
	}
	n := binary.LittleEndian.Uint64(lenField[:])

	payload := make([]byte, n)
	if _, err := io.ReadFull(m.r, payload); err != nil {
		return fmt.Errorf("messenger: read payload: %w", err)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("messenger: decode %s: %w", typeName, err)
	}
	return nil
}

// Listener accepts Messenger-wrapped connections on a listening socket.
type Listener struct {
	ln net.Listener
}

// Listen opens a listener on addr.
func Listen(network, addr string) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("messenger: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for the next incoming connection and wraps it.
func (l *Listener) Accept() (*Messenger, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("messenger: accept: %w", err)
	}
	return New(conn), nil
}

// Close closes the listening socket.
func (l *Listener) Close() error { return l.ln.Close() }
