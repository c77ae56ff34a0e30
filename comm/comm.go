/*Package comm provides persistent line-oriented connections to machine
controllers over RS232 or TCP.

A Link owns exactly one underlying connection.  Open and Close are idempotent,
so callers may treat the link as a scoped resource and unconditionally Close
on every exit path.  The link itself performs no interpretation of the data
beyond line framing; dialects (e.g. package grbl) are layered on top.
*/
package comm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrNotConnected is generated when I/O is attempted on a link that
	// has not been opened, without touching the channel.
	ErrNotConnected = errors.New("link is not open, not connected to remote")

	// ErrReadTimeout is generated when a read expires without yielding a
	// complete line.
	ErrReadTimeout = errors.New("read timed out with no complete line")
)

// CreationFunc is a function which returns a new "connection" to something.
// A closure should be used to encapsulate the variables needed.
type CreationFunc func() (io.ReadWriteCloser, error)

// SerialConnMaker returns a CreationFunc that opens an RS232 port.
// readTimeout is the per-read timeout enforced by the port itself.
func SerialConnMaker(name string, baud int, readTimeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		conf := &serial.Config{
			Name:        name,
			Baud:        baud,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: readTimeout}
		return serial.OpenPort(conf)
	}
}

// TCPConnMaker returns a CreationFunc that dials addr with a timeout on
// connect.  Read deadlines are managed per-read by the Link.
func TCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return net.DialTimeout("tcp", addr, timeout)
	}
}

// Link is a persistent connection to a controller with line framing.
// It is not concurrent safe; the consumer is expected to hold it exclusively
// (package gantry serializes access with a mutex).
type Link struct {
	// Addr is the port name or network address, used only for error text.
	Addr string

	// ReadTimeout bounds a single Readln call.
	ReadTimeout time.Duration

	maker   CreationFunc
	conn    io.ReadWriteCloser
	rdr     *bufio.Reader
	pending string
}

// NewLink returns a Link that will connect using maker when opened.
func NewLink(addr string, maker CreationFunc, readTimeout time.Duration) *Link {
	return &Link{Addr: addr, ReadTimeout: readTimeout, maker: maker}
}

// Open establishes the connection.  Calling Open on an open link is a no-op
// success.  Connection attempts are retried with an exponential backoff;
// serial-ethernet bridges do not like being connection thrashed.
func (l *Link) Open() error {
	if l.conn != nil {
		return nil
	}
	op := func() error {
		conn, err := l.maker()
		if err != nil {
			return err
		}
		l.conn = conn
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return fmt.Errorf("unable to connect to %s: %w", l.Addr, err)
	}
	l.rdr = bufio.NewReader(l.conn)
	return nil
}

// Close releases the connection.  Calling Close on a closed link is a no-op
// success.
func (l *Link) Close() error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	l.rdr = nil
	return err
}

// Connected reports whether the link is open.
func (l *Link) Connected() bool {
	return l.conn != nil
}

// Write sends raw bytes with no terminator.  Used for single-byte realtime
// commands such as the GRBL status query.
func (l *Link) Write(b []byte) error {
	if l.conn == nil {
		return ErrNotConnected
	}
	_, err := l.conn.Write(b)
	return err
}

// Writeln sends one line, appending the LF terminator.
func (l *Link) Writeln(s string) error {
	if l.conn == nil {
		return ErrNotConnected
	}
	_, err := l.conn.Write(append([]byte(s), '\n'))
	return err
}

// Readln reads one line, stripping terminators.  If the read expires before
// a complete line arrives, ErrReadTimeout is returned; partial data stays
// buffered and is completed by a later call.
func (l *Link) Readln() (string, error) {
	if l.conn == nil {
		return "", ErrNotConnected
	}
	if nc, ok := l.conn.(net.Conn); ok {
		nc.SetReadDeadline(time.Now().Add(l.ReadTimeout))
	}
	s, err := l.rdr.ReadString('\n')
	if err != nil {
		// hold on to any partial line so it can be completed by a
		// later call once the rest of the bytes arrive
		l.pending += s
		if isTimeout(err) {
			return "", ErrReadTimeout
		}
		return "", err
	}
	s = l.pending + s
	l.pending = ""
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s, nil
}

// Drain discards buffered input until a read comes back empty.  Used to
// clear greeting banners and stale status reports.
func (l *Link) Drain() {
	if l.conn == nil {
		return
	}
	for {
		_, err := l.Readln()
		if err != nil {
			l.pending = ""
			l.rdr.Reset(l.conn)
			return
		}
	}
}

// isTimeout distinguishes an expired read from a broken channel.  The serial
// package signals an expired ReadTimeout as io.EOF; an open port cannot
// produce a true EOF.
func isTimeout(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
