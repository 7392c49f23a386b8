package pix

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval matches the provider's recommended status cadence.
const DefaultPollInterval = 10 * time.Second

var ErrAlreadyPolling = errors.New("payment is already being polled")

// StatusCallback receives every observed status, including the immediate
// first check and the terminal one.
type StatusCallback func(status *StatusResponse)

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Poller watches payments until the provider reports a terminal status.
// Sessions are keyed by payment id, so independent payments poll
// independently and a second Start for the same payment is refused instead
// of silently colliding.
type Poller struct {
	client   Client
	interval time.Duration
	log      *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewPoller(client Client, interval time.Duration, log *zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:   client,
		interval: interval,
		log:      log,
		sessions: make(map[string]*session),
	}
}

// Start begins watching the payment. The first check runs immediately and
// the rest on the poll interval; every result is delivered through onStatus.
// The session ends on a terminal status, on Stop, or when ctx is cancelled.
func (p *Poller) Start(ctx context.Context, paymentID, registrationID string, onStatus StatusCallback) error {
	p.mu.Lock()
	if _, ok := p.sessions[paymentID]; ok {
		p.mu.Unlock()
		return ErrAlreadyPolling
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel, done: make(chan struct{})}
	p.sessions[paymentID] = s
	p.mu.Unlock()

	p.log.Info().Str("payment_id", paymentID).Msg("payment status polling started")

	go p.run(sctx, s, paymentID, registrationID, onStatus)
	return nil
}

func (p *Poller) run(ctx context.Context, s *session, paymentID, registrationID string, onStatus StatusCallback) {
	defer close(s.done)
	defer p.remove(paymentID, s)

	if p.checkAndReport(ctx, paymentID, registrationID, onStatus) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Str("payment_id", paymentID).Msg("payment status polling stopped")
			return
		case <-ticker.C:
			if p.checkAndReport(ctx, paymentID, registrationID, onStatus) {
				return
			}
		}
	}
}

// checkAndReport returns true when polling should end.
func (p *Poller) checkAndReport(ctx context.Context, paymentID, registrationID string, onStatus StatusCallback) bool {
	status, err := p.client.GetStatus(ctx, paymentID, registrationID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.log.Error().Err(err).Str("payment_id", paymentID).Msg("payment status check failed")
		return false
	}

	onStatus(status)

	if IsTerminal(status.Status) {
		p.log.Info().
			Str("payment_id", paymentID).
			Str("status", status.Status).
			Msg("terminal payment status observed")
		return true
	}
	return false
}

// Stop ends the session for the payment id and waits for its goroutine to
// finish. Stopping an unknown payment is a no-op.
func (p *Poller) Stop(paymentID string) {
	p.mu.Lock()
	s, ok := p.sessions[paymentID]
	if ok {
		delete(p.sessions, paymentID)
	}
	p.mu.Unlock()

	if ok {
		s.cancel()
		<-s.done
	}
}

// StopAll tears down every running session, used on shutdown.
func (p *Poller) StopAll() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*session)
	p.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
		<-s.done
	}
}

// CheckOnce performs a single status query, independent of any session.
func (p *Poller) CheckOnce(ctx context.Context, paymentID, registrationID string) (*StatusResponse, error) {
	return p.client.GetStatus(ctx, paymentID, registrationID)
}

func (p *Poller) remove(paymentID string, s *session) {
	p.mu.Lock()
	if cur, ok := p.sessions[paymentID]; ok && cur == s {
		delete(p.sessions, paymentID)
	}
	p.mu.Unlock()
}
