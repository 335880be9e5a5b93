package logsvc

import (
	"fmt"
	"net"
)

// Sender is the client-side helper every gateway/screen/robot process uses
// to emit log records to the shared UDP sink, mirroring logger_sender.rs's
// LoggerSender.
type Sender struct {
	receiverAddr string
	conn         net.Conn
}

// NewSender binds an ephemeral UDP socket and targets the receiver on the
// given port.
func NewSender(receiverPort uint16) (*Sender, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", receiverPort)
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("logsvc: dial receiver: %w", err)
	}
	return &Sender{receiverAddr: addr, conn: conn}, nil
}

// Close releases the sender's socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}

// Send emits one log record.
func (s *Sender) Send(msg Message) error {
	_, err := s.conn.Write(msg.marshal())
	if err != nil {
		return fmt.Errorf("logsvc: send to %s: %w", s.receiverAddr, err)
	}
	return nil
}

// SendRobot emits a record tagged as coming from the given robot.
func (s *Sender) SendRobot(id uint8, payload string) error {
	return s.Send(Message{Source: RobotSource(id), Payload: payload})
}

// SendScreen emits a record tagged as coming from the given screen.
func (s *Sender) SendScreen(id uint8, payload string) error {
	return s.Send(Message{Source: ScreenSource(id), Payload: payload})
}

// SendGateway emits a record tagged as coming from the gateway.
func (s *Sender) SendGateway(payload string) error {
	return s.Send(Message{Source: GatewaySource(), Payload: payload})
}
