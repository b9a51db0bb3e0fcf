package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(ctx context.Context, msg VerificationEmail) error

// SendVerification satisfies the Notifier interface.
func (f NotifierFunc) SendVerification(ctx context.Context, msg VerificationEmail) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// LogNotifier prints the verification message instead of delivering it,
// useful for development and as the default wiring in cmd/authd.
type LogNotifier struct{}

// SendVerification satisfies the Notifier interface.
func (LogNotifier) SendVerification(_ context.Context, msg VerificationEmail) error {
	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Printf("to: %s (%s)\n", msg.Recipient, msg.Name)
	fmt.Printf("link: %s\n", msg.ActivationLink)
	return nil
}

// Dispatcher runs notifier deliveries on background workers. Flows submit
// and move on: the submit never blocks, the flow outcome is already decided,
// and delivery failures are logged and swallowed.
type Dispatcher struct {
	notifier Notifier
	queue    chan VerificationEmail
	timeout  time.Duration
	logger   Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
	workers   int
}

// NewDispatcher wraps notifier with a bounded queue and worker pool.
func NewDispatcher(notifier Notifier, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan VerificationEmail, queueSize),
		timeout:  10 * time.Second,
		logger:   defLogger{},
		done:     make(chan struct{}),
		workers:  workers,
	}
}

// WithLogger overrides the dispatcher logger.
func (d *Dispatcher) WithLogger(logger Logger) *Dispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Start launches the worker pool. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
	})
}

// Stop signals the workers, waits for them to drain the queue, and returns
// once in-flight deliveries finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

// Dispatch submits a message without blocking. When the queue is full the
// message is dropped and logged; the triggering flow is unaffected either
// way.
func (d *Dispatcher) Dispatch(msg VerificationEmail) {
	select {
	case d.queue <- msg:
	case <-d.done:
		d.logger.Warn("notifier dispatcher stopped, dropping message", "recipient", msg.Recipient)
	default:
		d.logger.Warn("notifier queue full, dropping message", "recipient", msg.Recipient)
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-d.done:
			// drain what was queued before the stop signal
			for {
				select {
				case msg := <-d.queue:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg VerificationEmail) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.SendVerification(ctx, msg); err != nil {
		d.logger.Error("verification email delivery failed", "recipient", msg.Recipient, "error", err)
	}
}
