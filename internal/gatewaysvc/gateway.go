// Package gatewaysvc implements the payment gateway: it accepts
// CapturePayment/CommitPayment/CancelPayment messages from screens over
// plain TCP and reports a bare true/false for capture validity.
package gatewaysvc

import (
	"fmt"
	"net"

	"icering/internal/logging"
	"icering/internal/protocol"
)

// Gateway listens for screen connections and validates/commits/cancels
// card charges. It keeps no state across connections: every decision is a
// pure function of the message just received.
type Gateway struct {
	port   uint16
	logger *logging.Logger
}

// New returns a gateway bound to the given port.
func New(port uint16, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.L()
	}
	return &Gateway{port: port, logger: logger}
}

// IsCardValid applies the validation rule exactly as specified: reject
// when the card number is empty, its first character is not numeric, or
// its first character is '3'.
func IsCardValid(cardNumber string) bool {
	if len(cardNumber) == 0 {
		return false
	}
	first := rune(cardNumber[0])
	if first < '0' || first > '9' {
		return false
	}
	return first != '3'
}

// ListenAndServe binds the gateway's port and spawns one goroutine per
// accepted connection, matching the teacher's per-connection concurrency
// idiom: the listener loop never blocks on message handling.
func (g *Gateway) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", g.port))
	if err != nil {
		return fmt.Errorf("gatewaysvc: listen on port %d: %w", g.port, err)
	}
	g.logger.Info("gateway listening", logging.Int("port", int(g.port)))
	for {
		conn, err := listener.Accept()
		if err != nil {
			g.logger.Warn("gateway accept failed", logging.Error(err))
			continue
		}
		go g.handleConnection(conn)
	}
}

func (g *Gateway) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := protocol.NewFrameReader(conn)
	for {
		var msg protocol.GatewayMsg
		if err := reader.ReadFrame(&msg); err != nil {
			return
		}
		g.handleMessage(conn, msg)
	}
}

func (g *Gateway) handleMessage(conn net.Conn, msg protocol.GatewayMsg) {
	switch msg.Kind() {
	case "CapturePayment":
		valid := IsCardValid(msg.CardNumber())
		g.logger.Info("capture payment",
			logging.String("order_id", msg.OrderID().String()),
			logging.Bool("valid", valid))
		if _, err := fmt.Fprintf(conn, "%t", valid); err != nil {
			g.logger.Warn("gateway write failed", logging.Error(err))
		}
	case "CommitPayment":
		g.logger.Info("committing payment", logging.String("order_id", msg.OrderID().String()))
	case "CancelPayment":
		g.logger.Info("cancelling payment", logging.String("order_id", msg.OrderID().String()))
	}
}
