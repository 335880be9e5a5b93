package screensvc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"icering/internal/logging"
	"icering/internal/orders"
	"icering/internal/protocol"
)

// ProcessOrders reads client orders one JSON line at a time from r,
// validates each against the gateway, and - for every valid order - hands
// it to a robot. Lines that fail to parse are skipped, matching the
// source's flat_map(Result::ok) behaviour: one malformed order must not
// abort the whole intake stream. ProcessOrders keeps a single gateway
// connection open for the lifetime of the stream.
func (s *Screen) ProcessOrders(r io.Reader) error {
	gateway, err := s.dialGateway()
	if err != nil {
		return fmt.Errorf("screensvc: dial gateway: %w", err)
	}
	defer gateway.Close()

	frames := protocol.NewFrameReader(r)
	var orderNumber uint64
	for {
		var clientOrder orders.ClientOrder
		err := frames.ReadFrame(&clientOrder)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			s.logger.Warn("skipping malformed order", logging.Error(err))
			orderNumber++
			continue
		}

		valid, err := s.validate(gateway, clientOrder, orderNumber)
		if err != nil {
			return fmt.Errorf("screensvc: validate order %d: %w", orderNumber, err)
		}
		if !valid {
			s.logger.Info("order invalid", logging.Int64("order_number", int64(orderNumber)))
			s.publishDashboard("order_rejected", map[string]any{"order_number": orderNumber})
			orderNumber++
			continue
		}

		s.logger.Info("order valid", logging.Int64("order_number", int64(orderNumber)))
		order := orders.FromClientOrder(clientOrder, s.cfg.ID, orderNumber)
		s.publishDashboard("order_intake", map[string]any{"order_id": order.ID.String()})
		if err := s.notifyRobot(order); err != nil {
			s.logger.Warn("failed to hand order to any robot",
				logging.Int64("order_number", int64(orderNumber)), logging.Error(err))
		}
		orderNumber++
	}
}

// validate asks the gateway to capture payment for an order and parses its
// bare true/false reply. The gateway answers on the same connection with
// unframed text, not a JSON frame, matching gatewaysvc.handleMessage.
func (s *Screen) validate(gateway net.Conn, order orders.ClientOrder, orderNumber uint64) (bool, error) {
	id := orders.NewID(s.cfg.ID, orderNumber)
	msg := protocol.CapturePayment(id, order.CardNumber)
	if err := protocol.WriteFrame(gateway, msg); err != nil {
		return false, err
	}

	buf := make([]byte, 128)
	n, err := gateway.Read(buf)
	if err != nil {
		return false, err
	}
	valid, err := strconv.ParseBool(string(buf[:n]))
	if err != nil {
		return false, fmt.Errorf("invalid gateway response: %w", err)
	}
	return valid, nil
}

// notifyRobot hands a freshly validated order to a robot, matching the
// source's failover: try robot ids starting at orderNumber mod robot
// count, wrapping around, until one accepts the connection and the write.
func (s *Screen) notifyRobot(order orders.Order) error {
	msg := protocol.RecvOrder(order)
	for offset := uint16(0); offset < s.cfg.RobotCount; offset++ {
		id := uint16((order.ID.OrderNumber + uint64(offset)) % uint64(s.cfg.RobotCount))
		addr := robotIntakeAddr(s.cfg.RobotScreenStartingPort, id)
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			continue
		}
		err = protocol.WriteFrame(conn, msg)
		conn.Close()
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("could not notify any robot")
}
