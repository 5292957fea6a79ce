package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"campusattend/internal/attendance"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
)

// Dispatcher manages a pool of workers draining the notification queue.
type Dispatcher struct {
	size    int
	q       queue.Queue
	sender  Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with size workers.
func NewDispatcher(size int, q queue.Queue, sender Sender, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{size: size, q: q, sender: sender, timeout: timeout}
}

// Start launches the worker goroutines. They stop when ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	msgs, err := d.q.Consume(ctx)
	if err != nil {
		return err
	}
	for i := 0; i < d.size; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i, msgs)
	}
	return nil
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) worker(ctx context.Context, id int, msgs <-chan queue.Message) {
	defer d.wg.Done()
	log.Printf("notify worker %d started", id)
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				log.Printf("notify worker %d: queue closed", id)
				return
			}
			d.handle(ctx, msg)
		case <-ctx.Done():
			log.Printf("notify worker %d shutting down", id)
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg queue.Message) {
	if msg.Type != MessageType {
		metrics.Notifications.WithLabelValues("skipped").Inc()
		return
	}
	var t attendance.Transition
	if err := json.Unmarshal(msg.Body, &t); err != nil {
		metrics.Notifications.WithLabelValues("malformed").Inc()
		log.Printf("notify: malformed transition: %v", err)
		return
	}

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sender.Send(sctx, t); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		log.Printf("notify: send %s for %s: %v", t.Type, t.StudentID, err)
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
}
