package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/tender-matcher/internal/logger"
	"github.com/spigell/tender-matcher/internal/tender"
	"github.com/spigell/tender-matcher/internal/utils"
)

const defaultMaxLogLength = 200

var errNoGenerator = errors.New("ai provider is not configured")

type Options struct {
	// SupersedePending makes every new request cancel the requests that are
	// still outstanding, so at most one call is in flight at a time.
	SupersedePending bool
	MaxLogLength     int
}

// Augmenter asks the provider for a second opinion on a tender/client pair.
// Each request runs in its own cancellation scope; CancelPending aborts all of them.
type Augmenter struct {
	generator Generator
	logger    *zap.Logger
	maxLogLen int
	supersede bool

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]context.CancelFunc
}

func NewAugmenter(generator Generator, log *zap.Logger, opts Options) *Augmenter {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxLogLength <= 0 {
		opts.MaxLogLength = defaultMaxLogLength
	}

	return &Augmenter{
		generator: generator,
		logger:    log,
		maxLogLen: opts.MaxLogLength,
		supersede: opts.SupersedePending,
		pending:   make(map[uint64]context.CancelFunc),
	}
}

// Augment issues exactly one provider request. Failures are folded into a
// neutral fallback assessment; the only error returned wraps ErrCancelled.
func (a *Augmenter) Augment(ctx context.Context, contract *tender.Contract, client *tender.ClientProfile) (*Assessment, error) {
	if contract == nil || client == nil {
		return fallback(errors.New("tender and client are required")), nil
	}

	if a.generator == nil {
		a.logger.Warn("AI analysis skipped", zap.Error(errNoGenerator))
		return fallback(errNoGenerator), nil
	}

	callCtx, id := a.begin(ctx)
	defer a.end(id)

	prompt := BuildPrompt(contract, client)

	fields := logger.PairFields(contract.Title, client.ID)

	a.logger.Debug("analysis request",
		append(fields,
			zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
			zap.String("prompt_preview", utils.TruncateForLog(prompt, a.maxLogLen)),
		)...,
	)

	raw, err := a.generator.GenerateContent(callCtx, SystemInstruction, prompt)
	if err != nil {
		if errors.Is(callCtx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
			a.logger.Debug("analysis cancelled", append(fields, zap.Error(err))...)
			return nil, fmt.Errorf("%w: %s", ErrCancelled, contract.Title)
		}

		a.logger.Warn("AI analysis failed", append(fields, zap.Error(err))...)
		return fallback(err), nil
	}

	if strings.TrimSpace(raw) == "" {
		err := errors.New("no response content from provider")
		a.logger.Warn("AI analysis failed", append(fields, zap.Error(err))...)
		return fallback(err), nil
	}

	a.logger.Debug("analysis response",
		append(fields,
			zap.Int("response_length", utf8.RuneCountInString(raw)),
			zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
		)...,
	)

	return ParseResponse(raw), nil
}

// CancelPending cancels every outstanding request and returns how many there were.
func (a *Augmenter) CancelPending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.cancelAllLocked()
}

// Pending returns the number of requests currently in flight.
func (a *Augmenter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.pending)
}

func (a *Augmenter) begin(ctx context.Context) (context.Context, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.supersede {
		if n := a.cancelAllLocked(); n > 0 {
			a.logger.Debug("superseded outstanding analysis requests", zap.Int("cancelled", n))
		}
	}

	callCtx, cancel := context.WithCancel(ctx)
	a.nextID++
	a.pending[a.nextID] = cancel

	return callCtx, a.nextID
}

func (a *Augmenter) end(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cancel, ok := a.pending[id]; ok {
		cancel()
		delete(a.pending, id)
	}
}

func (a *Augmenter) cancelAllLocked() int {
	n := len(a.pending)
	for id, cancel := range a.pending {
		cancel()
		delete(a.pending, id)
	}
	return n
}
