// Package consumerWorker retries upstream payment cancellations that failed
// during registration deletion. The registration is already gone locally;
// the worker only keeps the payment provider from holding an orphaned
// payment request open.
package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"churchevents/internal/dto"
	"churchevents/internal/pix"
	"churchevents/internal/rabbit"
)

const (
	// MaxCancelAttempts bounds the retry chain per payment.
	MaxCancelAttempts = 5
	// RetryDelaySeconds is multiplied by the attempt number on republish.
	RetryDelaySeconds = 30
)

type Reader struct {
	RMQ    *rabbit.Client
	pix    pix.Client
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, pixClient pix.Client) *Reader {
	return &Reader{
		RMQ:  rmq,
		pix:  pixClient,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("payment cancel-retry worker started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.PaymentCancelRetryMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal cancel-retry message: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("payment_id", msg.PaymentID).
				Str("registration_id", msg.RegistrationID).
				Int("attempt", msg.Attempt).
				Msg("retrying upstream payment cancellation")

			if err := r.pix.CancelPayment(cctx, msg.PaymentID); err == nil {
				zlog.Logger.Info().
					Str("payment_id", msg.PaymentID).
					Msg("upstream payment cancelled")
				return nil
			} else if msg.Attempt >= MaxCancelAttempts {
				zlog.Logger.Error().
					Err(err).
					Str("payment_id", msg.PaymentID).
					Msg("giving up on upstream payment cancellation")
				return nil
			} else {
				zlog.Logger.Warn().
					Err(err).
					Str("payment_id", msg.PaymentID).
					Int("attempt", msg.Attempt).
					Msg("upstream payment cancellation failed, scheduling retry")
			}

			next := dto.PaymentCancelRetryMessage{
				RegistrationID: msg.RegistrationID,
				PaymentID:      msg.PaymentID,
				Attempt:        msg.Attempt + 1,
			}
			payload, err := json.Marshal(next)
			if err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to marshal cancel-retry message")
				return nil
			}
			if err := r.RMQ.Publish(payload, RetryDelaySeconds*next.Attempt); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to republish cancel-retry message")
			}
			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("payment cancel-retry worker stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
