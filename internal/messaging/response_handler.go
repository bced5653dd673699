package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ScreenPipe/internal/flow"
	"github.com/BTreeMap/ScreenPipe/internal/models"
	"github.com/BTreeMap/ScreenPipe/internal/store"
)

// Processor runs one inbound message through the interview.
type Processor interface {
	Handle(ctx context.Context, sender, message string) (flow.Reply, error)
}

// ErrorNotifier is told when a sender's message could not be processed.
type ErrorNotifier interface {
	NotifyError(ctx context.Context, sender string) error
}

// ResponseHandler routes inbound messages to the engine and sends replies back.
// Each sender's messages are processed one at a time in arrival order;
// different senders proceed concurrently.
type ResponseHandler struct {
	msgService Service
	engine     Processor
	dedup      store.DedupRepo
	alerts     ErrorNotifier

	mu     sync.Mutex
	queues map[string][]models.Response // pending messages per sender with a live worker
	wg     sync.WaitGroup
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*ResponseHandler)

// WithDedup drops inbound messages whose transport id was already seen.
func WithDedup(repo store.DedupRepo) HandlerOption {
	return func(rh *ResponseHandler) { rh.dedup = repo }
}

// WithErrorNotifier reports processing failures to an operator.
func WithErrorNotifier(n ErrorNotifier) HandlerOption {
	return func(rh *ResponseHandler) { rh.alerts = n }
}

// NewResponseHandler creates a ResponseHandler for the given service and engine.
func NewResponseHandler(msgService Service, engine Processor, opts ...HandlerOption) *ResponseHandler {
	rh := &ResponseHandler{msgService: msgService, engine: engine, queues: make(map[string][]models.Response)}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// ProcessResponse handles one inbound message. The completion sentinel and
// silent replies send nothing to the sender.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	from, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	if rh.dedup != nil && response.ID != "" {
		first, err := rh.dedup.RecordInbound(ctx, response.ID, from)
		if err != nil {
			slog.Warn("ResponseHandler dedup record failed, processing anyway", "error", err, "from", from)
		} else if !first {
			slog.Info("ResponseHandler dropping redelivered message", "from", from, "message_id", response.ID)
			return nil
		}
	}

	reply, err := rh.engine.Handle(ctx, from, response.Body)
	if err != nil {
		slog.Error("ResponseHandler engine failed", "error", err, "from", from)
		if rh.alerts != nil {
			if nerr := rh.alerts.NotifyError(ctx, from); nerr != nil {
				slog.Error("ResponseHandler failed to notify admin", "error", nerr, "from", from)
			}
		}
		if rh.dedup != nil && response.ID != "" {
			// nothing was applied, so a redelivery must be processed
			if ferr := rh.dedup.ForgetInbound(ctx, response.ID); ferr != nil {
				slog.Warn("ResponseHandler forget inbound failed", "error", ferr, "message_id", response.ID)
			}
		}
		return fmt.Errorf("process message from %s: %w", from, err)
	}

	switch reply.Kind {
	case flow.ReplyText:
		if err := rh.msgService.SendMessage(ctx, from, reply.Text); err != nil {
			return fmt.Errorf("send reply to %s: %w", from, err)
		}
	case flow.ReplyComplete:
		slog.Info("ResponseHandler interview complete", "from", from)
	default:
		slog.Debug("ResponseHandler no reply", "from", from)
	}

	if rh.dedup != nil && response.ID != "" {
		if err := rh.dedup.MarkProcessed(ctx, response.ID); err != nil {
			slog.Warn("ResponseHandler mark processed failed", "error", err, "message_id", response.ID)
		}
	}
	return nil
}

// Start drains the service's responses channel until it closes or ctx ends.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing")

	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		defer slog.Info("ResponseHandler stopped response processing")
		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				rh.enqueue(ctx, response)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until Start's loop has exited and every queued message is done.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}

// queueKey groups messages by canonical sender. Unparseable senders keep
// their raw value and fail validation in ProcessResponse.
func (rh *ResponseHandler) queueKey(from string) string {
	if key, err := rh.msgService.ValidateAndCanonicalizeRecipient(from); err == nil {
		return key
	}
	return from
}

// enqueue appends response to its sender's queue, starting a worker when the
// sender has none. Workers outlive ctx so accepted messages finish before
// the store closes.
func (rh *ResponseHandler) enqueue(ctx context.Context, response models.Response) {
	key := rh.queueKey(response.From)
	rh.mu.Lock()
	pending, running := rh.queues[key]
	rh.queues[key] = append(pending, response)
	if !running {
		rh.wg.Add(1)
	}
	rh.mu.Unlock()
	if !running {
		go rh.drain(context.WithoutCancel(ctx), key)
	}
}

// drain processes key's queue in order and exits once it is empty.
func (rh *ResponseHandler) drain(ctx context.Context, key string) {
	defer rh.wg.Done()
	for {
		rh.mu.Lock()
		pending := rh.queues[key]
		if len(pending) == 0 {
			delete(rh.queues, key)
			rh.mu.Unlock()
			return
		}
		next := pending[0]
		rh.queues[key] = pending[1:]
		rh.mu.Unlock()

		if err := rh.ProcessResponse(ctx, next); err != nil {
			slog.Error("ResponseHandler failed to process response", "error", err, "from", next.From)
		}
	}
}
