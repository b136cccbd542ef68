package link

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/cdrbridge/internal/protocol/frame"
)

var ErrUnexpectedMessage = errors.New("link: unexpected message")

// Conn carries link messages over one stream. Send is safe for concurrent
// use; Recv must be called from a single reader goroutine.
type Conn struct {
	conn         net.Conn
	r            *frame.Reader
	w            *frame.Writer
	writeTimeout time.Duration
}

func NewConn(conn net.Conn, writeTimeout time.Duration) *Conn {
	limits := frame.DefaultLimits()
	return &Conn{
		conn:         conn,
		r:            frame.NewReader(conn, limits),
		w:            frame.NewWriter(conn, limits),
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) Send(m Message) error {
	f, err := Encode(m)
	if err != nil {
		return err
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.w.Write(f)
}

func (c *Conn) Recv() (Message, error) {
	f, err := c.r.Read()
	if err != nil {
		return Message{}, err
	}
	return Decode(f)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Handshake is the client half of the hello exchange. It returns the
// peer's node id.
func (c *Conn) Handshake(nodeID string, timeout time.Duration) (string, error) {
	_ = c.conn.SetDeadline(time.Now().Add(timeout))
	defer c.conn.SetDeadline(time.Time{})
	if err := c.Send(Message{Type: MsgHello, NodeID: nodeID}); err != nil {
		return "", err
	}
	m, err := c.Recv()
	if err != nil {
		return "", err
	}
	if m.Type != MsgHello || m.Flags&frame.FlagIsResponse == 0 {
		return "", fmt.Errorf("%w: %s during handshake", ErrUnexpectedMessage, MessageName(m.Type))
	}
	return m.NodeID, nil
}

// AcceptHandshake is the server half of the hello exchange. It returns the
// client's node id. A non-nil verify can refuse the peer before the hello
// is answered.
func (c *Conn) AcceptHandshake(nodeID string, timeout time.Duration, verify func(peer string) error) (string, error) {
	_ = c.conn.SetDeadline(time.Now().Add(timeout))
	defer c.conn.SetDeadline(time.Time{})
	m, err := c.Recv()
	if err != nil {
		return "", err
	}
	if m.Type != MsgHello || m.Flags&frame.FlagIsResponse != 0 {
		return "", fmt.Errorf("%w: %s during handshake", ErrUnexpectedMessage, MessageName(m.Type))
	}
	if verify != nil {
		if err := verify(m.NodeID); err != nil {
			return m.NodeID, err
		}
	}
	if err := c.Send(Message{Type: MsgHello, Flags: frame.FlagIsResponse, NodeID: nodeID}); err != nil {
		return "", err
	}
	return m.NodeID, nil
}
