package logsvc

import (
	"bytes"
	"testing"
)

func TestMessageRoundTripsThroughWireFormat(t *testing.T) {
	msg := Message{Source: RobotSource(2), Payload: "order 1/7 completed"}

	buf := bytes.NewBuffer(msg.marshal())
	got, err := unmarshalMessage(buf)
	if err != nil {
		t.Fatalf("unmarshalMessage() error = %v", err)
	}
	if got.Source != msg.Source || got.Payload != msg.Payload {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, msg)
	}
}

func TestSourceStringMatchesDisplayFormat(t *testing.T) {
	cases := []struct {
		src  Source
		want string
	}{
		{RobotSource(3), "ROBOT(3)"},
		{ScreenSource(1), "SCREEN(1)"},
		{GatewaySource(), "GATEWAY"},
	}
	for _, c := range cases {
		if got := c.src.String(); got != c.want {
			t.Fatalf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestMarshalLengthPrefixIsBigEndian(t *testing.T) {
	msg := Message{Source: GatewaySource(), Payload: "hi"}
	wire := msg.marshal()
	// [tag][id][len:4 BE]["hi"]
	if wire[2] != 0 || wire[3] != 0 || wire[4] != 0 || wire[5] != 2 {
		t.Fatalf("expected big-endian length prefix 0x00000002, got % x", wire[2:6])
	}
}

func TestUnmarshalRejectsUnknownSourceTag(t *testing.T) {
	wire := []byte{9, 0, 0, 0, 0, 0}
	if _, err := unmarshalMessage(bytes.NewReader(wire)); err == nil {
		t.Fatal("expected an unknown source tag to be rejected")
	}
}
