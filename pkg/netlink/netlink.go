// Package netlink waits for the network link a chat session depends on.
// Associating with the access point is left to the host; a Station only
// confirms that traffic can reach the completion endpoint before the
// session starts.
package netlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/picochat/pkg/config"
)

// ErrLinkDown is returned by Connect when no link could be established.
var ErrLinkDown = errors.New("network link down")

// Prober checks whether addr is reachable.
type Prober interface {
	Probe(ctx context.Context, addr string) error
}

// DialProber probes by opening and immediately closing a TCP connection.
type DialProber struct {
	Timeout time.Duration
}

// Probe implements Prober.
func (p DialProber) Probe(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Link is an established network link.
type Link struct {
	SSID        string
	Probe       string
	Attempts    int
	ConnectedAt time.Time
}

// Station connects to the configured network.
type Station struct {
	config config.Link
	logger *zap.Logger

	// Prober defaults to a DialProber with a one second timeout.
	Prober Prober

	// Interval is the wait between attempts.
	Interval time.Duration
}

// NewStation creates a Station for cfg.
func NewStation(cfg config.Link, logger *zap.Logger) *Station {
	return &Station{
		config:   cfg,
		logger:   logger,
		Prober:   DialProber{Timeout: time.Second},
		Interval: time.Second,
	}
}

// Connect probes the link up to the configured number of attempts, waiting
// Interval between them. The returned error wraps ErrLinkDown.
func (s *Station) Connect(ctx context.Context) (*Link, error) {
	attempts := s.config.Attempts
	if attempts < 1 {
		attempts = 1
	}

	s.logger.Debug("connecting to network",
		zap.String("ssid", s.config.SSID),
		zap.String("probe", s.config.Probe),
		zap.Int("attempts", attempts),
	)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = s.Prober.Probe(ctx, s.config.Probe)
		if lastErr == nil {
			s.logger.Debug("connected to network",
				zap.String("ssid", s.config.SSID),
				zap.Int("attempt", attempt),
			)
			return &Link{
				SSID:        s.config.SSID,
				Probe:       s.config.Probe,
				Attempts:    attempt,
				ConnectedAt: time.Now(),
			}, nil
		}

		s.logger.Debug("link probe failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLinkDown, s.config.SSID, ctx.Err())
		case <-time.After(s.Interval):
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrLinkDown, s.config.SSID, attempts, lastErr)
}
