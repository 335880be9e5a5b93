package screensvc

import (
	"context"
	"fmt"
	"os"

	"icering/internal/logging"
)

// Run starts the confirmation listener in the background and then
// processes the order file in the foreground, matching the source's
// main.rs: a receiver thread spawned before the order file is streamed
// through, joined once the file is exhausted.
func (s *Screen) Run(ctx context.Context, ordersPath string) error {
	receiveErr := make(chan error, 1)
	go func() { receiveErr <- s.Receive(ctx) }()

	file, err := os.Open(ordersPath)
	if err != nil {
		return fmt.Errorf("screensvc: open orders file %s: %w", ordersPath, err)
	}
	defer file.Close()

	if err := s.ProcessOrders(file); err != nil {
		s.logger.Error("order intake failed", logging.Error(err))
		return err
	}

	select {
	case err := <-receiveErr:
		if err != nil && ctx.Err() == nil {
			return err
		}
	case <-ctx.Done():
	}
	return nil
}
