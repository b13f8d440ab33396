package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// Envelope is the one thing ever written to a ring socket: a Kind tag
// plus the gob-encoded payload matching that kind.
type Envelope struct {
	Kind    Kind
	Payload any
}

func init() {
	gob.Register(DeadRobot{})
	gob.Register(NewLeader{})
	gob.Register(Election{})
	gob.Register(RemoveRobot{})
	gob.Register(AllConnected{})
	gob.Register(Token{})
	gob.Register(Prepare{})
	gob.Register(Kill{})
	gob.Register(NewOrder{})
	gob.Register(RobotIntroduction{})
	gob.Register(ScreenIntroduction{})
	gob.Register(OrderComplete{})
	gob.Register(OrderDelivered{})
	gob.Register(UpdateStock{})
	gob.Register(PossibleLostToken{})
	gob.Register(TokenFound{})
	gob.Register(Commit{})
	gob.Register(Abort{})
	gob.Register(UpdateScreenLeader{})
	gob.Register(NewLeaderIntroduction{})
	gob.Register(ScreenOrder{})
	gob.Register(OrderScreen{})
	gob.Register(DeadScreen{})
	gob.Register(UpdateRobotLeader{})
}

// maxFrameLen guards against a corrupt length prefix turning into an
// unbounded allocation; no real message in this protocol approaches it.
const maxFrameLen = 16 << 20

// WriteFrame gob-encodes env and writes it to w prefixed with its
// 4-byte big-endian length, the length-prefixed framing spec.md calls
// out explicitly to avoid the original's fixed-buffer read bug.
func WriteFrame(w io.Writer, env Envelope) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return fmt.Errorf("wire: encode: %w", err)
	}
	if buf.Len() > maxFrameLen {
		return fmt.Errorf("wire: frame too large: %d bytes", buf.Len())
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadFrame blocks until one full length-prefixed frame has arrived on
// r, then decodes it. Returns io.EOF (possibly wrapped) when the peer
// has closed the connection cleanly between frames.
func ReadFrame(r io.Reader) (Envelope, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Envelope{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameLen {
		return Envelope{}, fmt.Errorf("wire: peer announced oversized frame: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Envelope{}, fmt.Errorf("wire: read payload: %w", err)
	}
	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode: %w", err)
	}
	return env, nil
}
