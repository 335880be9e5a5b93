// Package logsvc implements the UDP log sink from spec.md §6: a fixed
// binary record format ([source_tag][source_id][len BE][utf8 bytes]) sent
// by every other process and collected by a single receiver.
package logsvc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Source tags a log record's origin, matching spec.md §6's wire layout
// exactly (`0=Robot,1=Screen,2=Gateway`).
type Source struct {
	tag byte
	id  byte
}

// RobotSource tags a record as coming from the given robot.
func RobotSource(id uint8) Source { return Source{tag: 0, id: id} }

// ScreenSource tags a record as coming from the given screen.
func ScreenSource(id uint8) Source { return Source{tag: 1, id: id} }

// GatewaySource tags a record as coming from the (single) gateway.
func GatewaySource() Source { return Source{tag: 2} }

// String renders a debug-friendly representation, matching the source's
// Display impl (e.g. "ROBOT(2)").
func (s Source) String() string {
	switch s.tag {
	case 0:
		return fmt.Sprintf("ROBOT(%d)", s.id)
	case 1:
		return fmt.Sprintf("SCREEN(%d)", s.id)
	case 2:
		return "GATEWAY"
	default:
		return fmt.Sprintf("UNKNOWN(%d,%d)", s.tag, s.id)
	}
}

func (s Source) writeTo(w io.Writer) error {
	_, err := w.Write([]byte{s.tag, s.id})
	return err
}

func readSource(r io.Reader) (Source, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Source{}, fmt.Errorf("logsvc: read source: %w", err)
	}
	switch buf[0] {
	case 0, 1, 2:
		return Source{tag: buf[0], id: buf[1]}, nil
	default:
		return Source{}, fmt.Errorf("logsvc: unknown source tag %d", buf[0])
	}
}

// Message is one log record: a tagged source plus a UTF-8 body.
type Message struct {
	Source  Source
	Payload string
}

// marshal renders a message in the wire layout:
// [source_tag:u8][source_id:u8][len:u32 BE][utf8 bytes].
func (m Message) marshal() []byte {
	body := []byte(m.Payload)
	buf := make([]byte, 0, 2+4+len(body))
	buf = append(buf, m.Source.tag, m.Source.id)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, body...)
	return buf
}

func unmarshalMessage(r io.Reader) (Message, error) {
	source, err := readSource(r)
	if err != nil {
		return Message{}, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, fmt.Errorf("logsvc: read payload length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("logsvc: read payload: %w", err)
	}
	return Message{Source: source, Payload: string(body)}, nil
}
