package screensvc

import (
	"context"
	"fmt"
	"net"

	"icering/internal/logging"
	"icering/internal/protocol"
)

// Receive listens for ConfirmOrder/CancelOrder notifications from robots
// and settles the corresponding charge with the gateway over a single
// long-lived connection, matching the source's receiver: one gateway
// stream reused for every commit/cancel it issues.
func (s *Screen) Receive(ctx context.Context) error {
	gateway, err := s.dialGateway()
	if err != nil {
		return fmt.Errorf("screensvc: dial gateway: %w", err)
	}
	defer gateway.Close()

	addr := screenListenAddr(s.cfg.ScreenStartingPort, s.cfg.ID)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		err = fmt.Errorf("screensvc: listen on %s: %w", addr, err)
		s.setStartupErr(err)
		return err
	}
	s.markStarted()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("screen listening for order outcomes", logging.String("addr", addr))
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("screen accept failed", logging.Error(err))
			continue
		}
		s.handleOutcomeConn(conn, gateway)
	}
}

func (s *Screen) handleOutcomeConn(conn net.Conn, gateway net.Conn) {
	defer conn.Close()
	frames := protocol.NewFrameReader(conn)
	for {
		var msg protocol.ScreenMsg
		if err := frames.ReadFrame(&msg); err != nil {
			return
		}
		s.handleOutcome(msg, gateway)
	}
}

func (s *Screen) handleOutcome(msg protocol.ScreenMsg, gateway net.Conn) {
	id := msg.OrderID()
	switch msg.Kind() {
	case "ConfirmOrder":
		s.logger.Info("order done", logging.String("order_id", id.String()))
		s.publishDashboard("order_confirmed", map[string]any{"order_id": id.String()})
		if err := protocol.WriteFrame(gateway, protocol.CommitPayment(id)); err != nil {
			s.logger.Warn("failed to commit payment", logging.String("order_id", id.String()), logging.Error(err))
		}
	case "CancelOrder":
		s.logger.Info("order canceled", logging.String("order_id", id.String()))
		s.publishDashboard("order_cancelled", map[string]any{"order_id": id.String()})
		if err := protocol.WriteFrame(gateway, protocol.CancelPayment(id)); err != nil {
			s.logger.Warn("failed to cancel payment", logging.String("order_id", id.String()), logging.Error(err))
		}
	default:
		s.logger.Warn("received unknown screen message", logging.String("kind", msg.Kind()))
	}
}
