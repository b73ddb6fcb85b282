package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
)

// Sender delivers one push message to one device token.
type Sender interface {
	Send(ctx context.Context, token string, msg models.Message) error
}

// Dispatcher sends a message to every token of a recipient set through a
// bounded pool of workers. Individual failures are counted, never returned.
type Dispatcher struct {
	sender     Sender
	maxWorkers int
	timeout    time.Duration
	logger     *logging.Logger
}

func NewDispatcher(sender Sender, maxWorkers int, timeout time.Duration, logger *logging.Logger) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Dispatcher{sender: sender, maxWorkers: maxWorkers, timeout: timeout, logger: logger}
}

// Dispatch does not retry. Tokens still queued when ctx is cancelled count as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, set *models.RecipientSet, msg models.Message) models.DeliveryOutcome {
	outcome := models.DeliveryOutcome{}
	if set == nil {
		return outcome
	}
	outcome.Groups = set.Groups
	if len(set.Tokens) == 0 {
		return outcome
	}
	outcome.Attempted = len(set.Tokens)

	workers := d.maxWorkers
	if workers > len(set.Tokens) {
		workers = len(set.Tokens)
	}

	var succeeded, failed atomic.Int64
	tokens := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go d.worker(ctx, i, tokens, msg, &wg, &succeeded, &failed)
	}

	queued := 0
feed:
	for _, token := range set.Tokens {
		select {
		case tokens <- token:
			queued++
		case <-ctx.Done():
			break feed
		}
	}
	close(tokens)
	wg.Wait()

	if unsent := len(set.Tokens) - queued; unsent > 0 {
		d.logger.Warnf("Dispatch cancelled, %d tokens not sent: %v", unsent, ctx.Err())
		failed.Add(int64(unsent))
	}
	outcome.Succeeded = int(succeeded.Load())
	outcome.Failed = int(failed.Load())
	return outcome
}

// worker sends queued tokens until the channel is closed.
func (d *Dispatcher) worker(ctx context.Context, id int, tokens <-chan string, msg models.Message, wg *sync.WaitGroup, succeeded, failed *atomic.Int64) {
	defer wg.Done()
	for token := range tokens {
		if err := d.send(ctx, token, msg); err != nil {
			failed.Add(1)
			d.logger.Debugf("Worker %d: send to %s failed: %v", id, maskToken(token), err)
			continue
		}
		succeeded.Add(1)
	}
}

func (d *Dispatcher) send(ctx context.Context, token string, msg models.Message) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.sender.Send(ctx, token, msg)
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
