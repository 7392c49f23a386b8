package pix

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns a fixed sequence of statuses, repeating the last
// one once the script runs out.
type scriptedClient struct {
	mu       sync.Mutex
	statuses []string
	calls    int
}

func (c *scriptedClient) GetStatus(ctx context.Context, paymentID, registrationID string) (*StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	if idx >= len(c.statuses) {
		idx = len(c.statuses) - 1
	}
	c.calls++
	return &StatusResponse{PaymentID: paymentID, Status: c.statuses[idx]}, nil
}

func (c *scriptedClient) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentData, error) {
	return nil, nil
}

func (c *scriptedClient) GetPayment(ctx context.Context, paymentID string) (*PaymentData, error) {
	return nil, nil
}

func (c *scriptedClient) CancelPayment(ctx context.Context, paymentID string) error {
	return nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestPoller(client Client) *Poller {
	log := zerolog.Nop()
	return NewPoller(client, 5*time.Millisecond, &log)
}

func TestPollerStopsOnTerminalStatus(t *testing.T) {
	client := &scriptedClient{statuses: []string{StatusPending, StatusPending, StatusApproved}}
	poller := newTestPoller(client)

	observed := make(chan string, 16)
	err := poller.Start(context.Background(), "pay-1", "reg-1", func(s *StatusResponse) {
		observed <- s.Status
	})
	require.NoError(t, err)

	var got []string
	for status := range collect(observed, 3, time.Second) {
		got = append(got, status)
	}
	assert.Equal(t, []string{StatusPending, StatusPending, StatusApproved}, got)

	// The session ends right after the terminal callback: no further ticks
	// arrive and the payment can be watched again.
	assert.Eventually(t, func() bool {
		return poller.Start(context.Background(), "pay-1", "reg-1", func(*StatusResponse) {}) == nil
	}, time.Second, 5*time.Millisecond)
	poller.Stop("pay-1")

	select {
	case s := <-observed:
		t.Fatalf("unexpected callback after terminal status: %s", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPollerRefusesDuplicateSession(t *testing.T) {
	client := &scriptedClient{statuses: []string{StatusPending}}
	poller := newTestPoller(client)

	require.NoError(t, poller.Start(context.Background(), "pay-1", "reg-1", func(*StatusResponse) {}))
	assert.ErrorIs(t, poller.Start(context.Background(), "pay-1", "reg-1", func(*StatusResponse) {}), ErrAlreadyPolling)

	// A different payment id polls independently.
	require.NoError(t, poller.Start(context.Background(), "pay-2", "reg-2", func(*StatusResponse) {}))

	poller.StopAll()
}

func TestPollerStopIsIdempotent(t *testing.T) {
	client := &scriptedClient{statuses: []string{StatusPending}}
	poller := newTestPoller(client)

	poller.Stop("unknown")

	require.NoError(t, poller.Start(context.Background(), "pay-1", "reg-1", func(*StatusResponse) {}))
	poller.Stop("pay-1")
	poller.Stop("pay-1")
}

func TestPollerHonorsContextCancellation(t *testing.T) {
	client := &scriptedClient{statuses: []string{StatusPending}}
	poller := newTestPoller(client)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, poller.Start(ctx, "pay-1", "reg-1", func(*StatusResponse) {}))

	cancel()

	assert.Eventually(t, func() bool {
		return poller.Start(context.Background(), "pay-1", "reg-1", func(*StatusResponse) {}) == nil
	}, time.Second, 5*time.Millisecond)
	poller.Stop("pay-1")
}

func TestCheckOnceIsIndependentOfSessions(t *testing.T) {
	client := &scriptedClient{statuses: []string{StatusRejected}}
	poller := newTestPoller(client)

	status, err := poller.CheckOnce(context.Background(), "pay-9", "reg-9")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, status.Status)
	assert.Equal(t, 1, client.callCount())
}

// collect reads up to n values from ch, giving up after the timeout.
func collect(ch <-chan string, n int, timeout time.Duration) <-chan string {
	out := make(chan string, n)
	go func() {
		defer close(out)
		deadline := time.After(timeout)
		for i := 0; i < n; i++ {
			select {
			case v := <-ch:
				out <- v
			case <-deadline:
				return
			}
		}
	}()
	return out
}
