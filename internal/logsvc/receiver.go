package logsvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"icering/internal/logging"
)

const maxDatagramSize = 1024

// Receiver is the cmd/logger binary's UDP listener, mirroring
// logger_receiver.rs's LoggerReceiver: every datagram is one complete,
// self-contained Message (the source never fragments a record across
// multiple sends).
type Receiver struct {
	port   uint16
	output io.Writer
	echo   bool
	logger *logging.Logger

	startupMu  sync.Mutex
	startupErr error
	startedAt  time.Time
}

// NewReceiver constructs a receiver bound to port, writing formatted lines
// to output and - when echo is true - also to the process's own structured
// logger, matching the source's display_in_terminal flag.
func NewReceiver(port uint16, output io.Writer, echo bool, logger *logging.Logger) *Receiver {
	if logger == nil {
		logger = logging.L()
	}
	return &Receiver{port: port, output: output, echo: echo, logger: logger}
}

// StartupError reports why the receiver failed to bind its socket, if it
// did. Satisfies httpapi.ReadinessProvider.
func (r *Receiver) StartupError() error {
	r.startupMu.Lock()
	defer r.startupMu.Unlock()
	return r.startupErr
}

// Uptime reports how long the receiver has been running. Satisfies
// httpapi.ReadinessProvider.
func (r *Receiver) Uptime() time.Duration {
	r.startupMu.Lock()
	startedAt := r.startedAt
	r.startupMu.Unlock()
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt)
}

// Run binds the UDP socket and processes datagrams until ctx is canceled.
func (r *Receiver) Run(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", r.port)
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		err = fmt.Errorf("logsvc: listen on %s: %w", addr, err)
		r.setStartupErr(err)
		return err
	}
	defer conn.Close()

	r.startupMu.Lock()
	r.startedAt = time.Now()
	r.startupMu.Unlock()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	r.logger.Info("log receiver listening", logging.String("addr", addr))

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("log receiver read failed", logging.Error(err))
			continue
		}
		msg, err := unmarshalMessage(bytes.NewReader(buf[:n]))
		if err != nil {
			r.logger.Warn("dropping malformed log datagram", logging.Error(err))
			continue
		}
		r.emit(msg)
	}
}

func (r *Receiver) emit(msg Message) {
	text := fmt.Sprintf("[%s] %s", msg.Source, msg.Payload)
	if r.echo {
		r.logger.Info("log record received", logging.String("source", msg.Source.String()))
	}
	if r.output != nil {
		fmt.Fprintln(r.output, text)
	}
}

func (r *Receiver) setStartupErr(err error) {
	r.startupMu.Lock()
	r.startupErr = err
	r.startupMu.Unlock()
}
