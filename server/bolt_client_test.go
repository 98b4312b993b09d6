package server_test

import (
	"bufio"
	"bytes"
	"net"

	"github.com/bolt-proto/boltd/boltvalue"
	"github.com/bolt-proto/boltd/internal/chunk"
	"github.com/bolt-proto/boltd/internal/packstream"
)

// testClient is a minimal hand-rolled Bolt client used only to drive the
// server end to end in these specs — not a public artifact, just enough
// of the wire protocol to perform the handshake and exchange a handful of
// client/server structures without pulling in a real driver dependency.
type testClient struct {
	conn net.Conn
	br   *bufio.Reader
	cw   *chunk.Writer
	cr   *chunk.Reader
}

func dialTestClient(addr string) (*testClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &testClient{conn: conn, br: bufio.NewReader(conn)}, nil
}

func (c *testClient) handshake(minor byte) error {
	if _, err := c.conn.Write([]byte{0x60, 0x60, 0xB0, 0x17}); err != nil {
		return err
	}
	word := []byte{0, 3, minor, 5} // propose 5.(minor-3)..5.(minor), range 3
	pad := []byte{0, 0, 0, 0}
	if _, err := c.conn.Write(word); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if _, err := c.conn.Write(pad); err != nil {
			return err
		}
	}
	reply := make([]byte, 4)
	if _, err := c.br.Read(reply); err != nil {
		return err
	}
	c.cw = chunk.NewWriter(c.conn)
	c.cr = chunk.NewReader(c.br, chunk.DefaultMaxMessageSize)
	return nil
}

func (c *testClient) sendStruct(tag byte, fields []any) error {
	buf := &bytes.Buffer{}
	p := packstream.NewPacker(buf, boltvalue.Dehydrate)
	if err := p.PackStruct(tag, fields); err != nil {
		return err
	}
	return c.cw.WriteMessage(buf.Bytes())
}

// recvStruct reads one server message and returns its tag and fields,
// using the same UnpackMessageStruct entry point the message codec uses
// internally, so this test client never needs its own copy of the
// message-tag table's decode rules.
func (c *testClient) recvStruct() (byte, []any, error) {
	raw, err := c.cr.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	u := packstream.NewUnpacker(raw, boltvalue.Hydrate)
	return u.UnpackMessageStruct()
}

func (c *testClient) close() { c.conn.Close() }
