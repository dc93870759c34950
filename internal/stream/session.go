package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"unichat/internal/client"
	"unichat/internal/logging"
	"unichat/internal/types"
)

// Opener starts a streaming completion. *client.Client implements it.
type Opener interface {
	OpenCompletion(ctx context.Context, req client.CompletionRequest) (io.ReadCloser, error)
}

type Request struct {
	Agent       types.AgentKind
	Model       string
	Temperature float64
	Messages    []types.CompletionMessage
}

type Callbacks struct {
	OnFragment func(text string)
	OnDone     func()
}

// Session runs one completion request and reports fragments as they arrive.
// A Session is single use.
type Session struct {
	opener Opener
	logger logging.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	started  bool
	live     atomic.Bool
	canceled atomic.Bool
	doneOnce sync.Once
	text     []byte
}

func NewSession(opener Opener, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Session{opener: opener, logger: logger}
	s.live.Store(true)
	return s
}

// Live reports whether fragments from this session may still be applied.
func (s *Session) Live() bool {
	return s.live.Load()
}

// Canceled reports whether Cancel ended the session.
func (s *Session) Canceled() bool {
	return s.canceled.Load()
}

// Text returns the fragments delivered so far, concatenated.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.text)
}

// Cancel aborts the transport and stops fragment delivery. It is safe to call
// before Run, during it, or more than once.
func (s *Session) Cancel() {
	if !s.live.Swap(false) {
		return
	}
	s.canceled.Store(true)
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run blocks until the stream ends, the adapter reports a stop, the session
// is cancelled, or a transport or request error occurs. OnDone runs exactly
// once on every path except an error, which is returned instead. Cancellation
// is not an error.
func (s *Session) Run(ctx context.Context, req Request, cb Callbacks) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("stream session already started")
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()
	if !s.live.Load() {
		cancel()
		s.finish(cb)
		return nil
	}

	logger := s.logger.With(logging.F("agent", req.Agent), logging.F("model", req.Model))
	adapter := AdapterFor(req.Agent)
	body, err := s.opener.OpenCompletion(ctx, client.CompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Stream:      true,
		Messages:    req.Messages,
	})
	if err != nil {
		if s.Canceled() {
			s.finish(cb)
			return nil
		}
		s.live.Store(false)
		logger.Warn("stream_open_failed", logging.Err(err))
		return err
	}
	defer body.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = body.Close()
	})
	defer stop()

	dec := NewDecoder(body, logger)
	fragments := 0
	for {
		rec, err := dec.Next()
		if !s.live.Load() {
			logger.Debug("stream_canceled", logging.F("fragments", fragments))
			s.finish(cb)
			return nil
		}
		if errors.Is(err, io.EOF) {
			logger.Debug("stream_end", logging.F("fragments", fragments), logging.F("done_marker", dec.Done()))
			break
		}
		if err != nil {
			if s.Canceled() {
				s.finish(cb)
				return nil
			}
			s.live.Store(false)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn("stream_read_failed", logging.Err(err))
			return &client.TransportError{Op: "read completion stream", Err: err}
		}
		if text, ok := adapter.Extract(rec.Chunk); ok {
			fragments++
			s.mu.Lock()
			s.text = append(s.text, text...)
			s.mu.Unlock()
			if cb.OnFragment != nil && s.live.Load() {
				cb.OnFragment(text)
			}
		}
		if Finished(rec.Chunk) {
			logger.Debug("stream_finished", logging.F("fragments", fragments))
			break
		}
	}
	s.live.Store(false)
	s.finish(cb)
	return nil
}

func (s *Session) finish(cb Callbacks) {
	s.doneOnce.Do(func() {
		if cb.OnDone != nil {
			cb.OnDone()
		}
	})
}
