package shutdown

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vinayprograms/nodelink/logging"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed during shutdown.
	ErrHandlerFailed = errors.New("one or more handlers failed")
)

// Standard phases.
const (
	PhaseStop    = 10 // stop producing work
	PhaseFlush   = 20 // flush buffered output
	PhaseRelease = 30 // release listeners and connections
)

// Handler performs one cleanup step. It should return when ctx ends.
type Handler func(ctx context.Context) error

// HandlerResult contains the result of a single handler's shutdown.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result contains the complete shutdown result.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult

	// Err is nil, ErrTimeout or ErrHandlerFailed.
	Err error
}

// Failed returns true if any handler failed or the deadline passed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// DefaultTimeout is used by ShutdownWithTimeout when given zero.
	// Default: 10 seconds
	DefaultTimeout time.Duration

	// Logger receives one line per handler.
	// Default: logging.Nop()
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 10 * time.Second,
		Logger:         logging.Nop(),
	}
}

type registration struct {
	name    string
	handler Handler
	phase   int
}

// Coordinator runs registered handlers once, phase by phase.
type Coordinator struct {
	config Config

	mu       sync.Mutex
	handlers []registration
	started  bool
	done     chan struct{}
	result   *Result
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	def := DefaultConfig()
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = def.DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	return &Coordinator{
		config: config,
		done:   make(chan struct{}),
	}
}

// Register adds a handler to run in the given phase.
func (c *Coordinator) Register(name string, phase int, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: h, phase: phase})
}

// Shutdown runs every handler. Only the first call does any work; later
// calls wait for it and get a result whose Err is ErrAlreadyShutdown.
func (c *Coordinator) Shutdown(ctx context.Context) *Result {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		<-c.done
		return &Result{Err: ErrAlreadyShutdown}
	}
	c.started = true
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	res := c.run(ctx, handlers)

	c.mu.Lock()
	c.result = res
	c.mu.Unlock()
	close(c.done)
	return res
}

// ShutdownWithTimeout calls Shutdown with a deadline.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) *Result {
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// Done returns a channel that is closed when shutdown is complete.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the shutdown result, or nil before Done is closed.
func (c *Coordinator) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Coordinator) run(ctx context.Context, handlers []registration) *Result {
	start := time.Now()
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	res := &Result{Results: make([]HandlerResult, 0, len(handlers))}
	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			res.Err = ErrTimeout
			break
		}
		for _, hr := range c.runPhase(ctx, group) {
			res.Results = append(res.Results, hr)
			if hr.Err != nil && res.Err == nil {
				res.Err = ErrHandlerFailed
			}
		}
	}
	res.TotalDuration = time.Since(start)
	return res
}

// runPhase runs all handlers in a phase concurrently.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup

	for i, reg := range group {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()

			start := time.Now()
			err := r.handler(ctx)
			results[idx] = HandlerResult{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(start),
				Err:      err,
			}

			fields := map[string]interface{}{
				"handler":  r.name,
				"phase":    r.phase,
				"duration": results[idx].Duration.String(),
			}
			if err != nil {
				fields["error"] = err.Error()
				c.config.Logger.Warn("shutdown_step_failed", fields)
			} else {
				c.config.Logger.Debug("shutdown_step", fields)
			}
		}(i, reg)
	}

	wg.Wait()
	return results
}

// groupByPhase splits phase-sorted handlers into runs of equal phase.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i := 0; i < len(handlers); {
		j := i + 1
		for j < len(handlers) && handlers[j].phase == handlers[i].phase {
			j++
		}
		groups = append(groups, handlers[i:j])
		i = j
	}
	return groups
}
