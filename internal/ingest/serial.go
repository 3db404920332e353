package ingest

import (
	"bufio"
	"context"
	"log"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"

	"parking-bridge-backend/config"
)

// Source reads newline-delimited messages from the serial port and feeds
// them to a line handler. Port open and read failures are retried with
// exponential backoff so a transient hardware disconnect does not take the
// bridge down.
type Source struct {
	cfg     config.SerialConfig
	handler func(string)
}

// NewSource creates a serial source feeding lines into handler.
func NewSource(cfg config.SerialConfig, handler func(string)) *Source {
	return &Source{cfg: cfg, handler: handler}
}

// Run opens the port and pumps lines until the context is cancelled. A read
// error closes the port and re-enters the supervised open loop.
func (s *Source) Run(ctx context.Context) {
	for ctx.Err() == nil {
		port, err := s.open(ctx)
		if err != nil {
			// Only context cancellation gets the retry loop to give up.
			return
		}
		log.Printf("serial port %s open at %d baud", s.cfg.Port, s.cfg.BaudRate)

		// Unblock the reader when the context is cancelled.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				port.Close()
			case <-done:
			}
		}()

		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			s.handler(scanner.Text())
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Printf("serial read error on %s: %v", s.cfg.Port, err)
		}

		close(done)
		port.Close()
	}
}

// open retries the port open with exponential backoff, capped at the
// configured maximum interval, until it succeeds or the context ends.
func (s *Source) open(ctx context.Context) (serial.Port, error) {
	var port serial.Port

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = s.cfg.MaxReopenInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		p, err := serial.Open(s.cfg.Port, &serial.Mode{BaudRate: s.cfg.BaudRate})
		if err != nil {
			log.Printf("serial open %s failed: %v (retrying)", s.cfg.Port, err)
			return err
		}
		port = p
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, err
	}
	return port, nil
}
