// Package bridge exposes a provider's function table to a single-threaded
// host. Asynchronous operations run the provider call on a worker goroutine
// and deliver the outcome back on the host loop; synchronous operations run
// on the caller's goroutine.
package bridge

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/glinharesb/chevron-bridge/internal/hostloop"
	"github.com/glinharesb/chevron-bridge/internal/provider"
)

// Completion describes a finished operation. Observers receive one per
// asynchronous task and one per synchronous call.
type Completion struct {
	TaskID            string
	Op                Op
	Style             Style
	Status            int32
	LoadedPrivateKeys int32
	Err               string
	Provider          string
	Duration          time.Duration
	Finished          time.Time
}

// Observer is called on the host loop for asynchronous tasks and on the
// caller's goroutine for synchronous calls.
type Observer func(Completion)

// Bridge owns the active provider handle and dispatches operations to it.
type Bridge struct {
	loop     *hostloop.Loop
	resolve  func(dir string) (*provider.Handle, error)
	handle   atomic.Pointer[provider.Handle]
	sem      *semaphore.Weighted
	observer Observer
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLoop delivers completions to l instead of a private loop.
func WithLoop(l *hostloop.Loop) Option {
	return func(b *Bridge) { b.loop = l }
}

// WithResolver replaces provider.Resolve as the way Load turns a directory
// into a handle.
func WithResolver(fn func(dir string) (*provider.Handle, error)) Option {
	return func(b *Bridge) { b.resolve = fn }
}

// WithMaxWorkers caps how many provider calls run concurrently. Zero or a
// negative value means no cap.
func WithMaxWorkers(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.sem = semaphore.NewWeighted(int64(n))
		} else {
			b.sem = nil
		}
	}
}

// WithObserver registers fn to be told about every completion.
func WithObserver(fn Observer) Option {
	return func(b *Bridge) { b.observer = fn }
}

func New(opts ...Option) *Bridge {
	b := &Bridge{resolve: provider.Resolve}
	for _, opt := range opts {
		opt(b)
	}
	if b.loop == nil {
		b.loop = hostloop.New()
	}
	return b
}

// Loop returns the host loop completions are delivered on.
func (b *Bridge) Loop() *hostloop.Loop {
	return b.loop
}

// Run drains the host loop until every submitted task has delivered.
func (b *Bridge) Run(ctx context.Context) error {
	return b.loop.Run(ctx)
}

// Load resolves a provider library in dir and makes it the active provider.
// On failure the previously active provider, if any, is kept.
func (b *Bridge) Load(dir string) (bool, error) {
	h, err := b.resolve(dir)
	if err != nil {
		Logger().Warn("provider load failed", zap.String("dir", dir), zap.Error(err))
		return false, &ResolutionError{Dir: dir, Err: err}
	}
	b.Install(h)
	return true, nil
}

// Install makes h the active provider. Tasks already submitted keep using the
// provider they were created with. A nil h is ignored.
func (b *Bridge) Install(h *provider.Handle) {
	if h == nil {
		return
	}
	prev := b.handle.Swap(h)
	fields := []zap.Field{zap.String("path", h.Path())}
	if prev != nil {
		fields = append(fields, zap.String("previous", prev.Path()))
	}
	Logger().Info("provider installed", fields...)
}

// Loaded reports whether a provider is active.
func (b *Bridge) Loaded() bool {
	return b.handle.Load() != nil
}

// Handle returns the active provider, or nil.
func (b *Bridge) Handle() *provider.Handle {
	return b.handle.Load()
}

// Submit validates args and starts an asynchronous operation. Validation
// failures are returned immediately and cb is never called. Otherwise cb is
// called exactly once, on the host loop.
func (b *Bridge) Submit(op Op, args []any, cb Callback) (string, error) {
	spec, ok := catalog[op]
	if !ok {
		return "", &ArgumentError{Op: op, Index: -1, Err: ErrUnknownOp}
	}
	if spec.style != Async {
		return "", &ArgumentError{Op: op, Index: -1, Err: errSyncOnly}
	}
	if cb == nil {
		return "", &ArgumentError{Op: op, Index: -1, Err: ErrNilCallback}
	}
	parsed, err := validate(op, args)
	if err != nil {
		return "", err
	}

	task := newTask(op, parsed, b.handle.Load(), cb)
	b.loop.Ref()
	go b.work(task)

	Logger().Debug("task submitted", zap.String("task", task.ID), zap.Stringer("op", op))
	return task.ID, nil
}

func (b *Bridge) work(task *Task) {
	if b.sem != nil {
		// Background never cancels, so Acquire cannot fail.
		_ = b.sem.Acquire(context.Background(), 1)
	}
	out := task.execute()
	if b.sem != nil {
		b.sem.Release(1)
	}
	finished := time.Now()

	b.loop.Complete(func() {
		b.deliver(task, out, finished)
	})
}

func (b *Bridge) deliver(task *Task, out outcome, finished time.Time) {
	err := out.err(task.Op)
	b.notify(Completion{
		TaskID:            task.ID,
		Op:                task.Op,
		Style:             Async,
		Status:            out.status,
		LoadedPrivateKeys: out.loaded,
		Err:               errString(err),
		Provider:          handlePath(task.handle),
		Duration:          finished.Sub(task.created),
		Finished:          finished,
	})

	if err != nil {
		task.callback(err, nil)
		return
	}
	task.callback(nil, out.value(task.Op))
}

// CallSync runs a synchronous operation on the calling goroutine and returns
// the provider's output. A provider ERROR is returned as *ProviderError.
func (b *Bridge) CallSync(op Op, args []any) (string, error) {
	spec, ok := catalog[op]
	if !ok {
		return "", &ArgumentError{Op: op, Index: -1, Err: ErrUnknownOp}
	}
	if spec.style != Sync {
		return "", &ArgumentError{Op: op, Index: -1, Err: errAsyncOnly}
	}
	parsed, err := validate(op, args)
	if err != nil {
		return "", err
	}

	h := b.handle.Load()
	start := time.Now()
	out := invoke(h, op, parsed)
	finished := time.Now()

	err = out.err(op)
	b.notify(Completion{
		Op:       op,
		Style:    Sync,
		Status:   out.status,
		Err:      errString(err),
		Provider: handlePath(h),
		Duration: finished.Sub(start),
		Finished: finished,
	})
	if err != nil {
		return "", err
	}
	return out.output, nil
}

func (b *Bridge) notify(c Completion) {
	if c.Err != "" {
		Logger().Debug("operation failed", zap.String("task", c.TaskID), zap.Stringer("op", c.Op), zap.String("error", c.Err))
	}
	if b.observer != nil {
		b.observer(c)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func handlePath(h *provider.Handle) string {
	if h == nil {
		return ""
	}
	return h.Path()
}
