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

// MessageType tags transition messages on the queue.
const MessageType = "attendance.transition"

// QueueNotifier publishes transitions onto a queue without blocking the caller.
type QueueNotifier struct {
	q       queue.Queue
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewQueueNotifier creates a notifier. timeout bounds each publish.
func NewQueueNotifier(q queue.Queue, timeout time.Duration) *QueueNotifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &QueueNotifier{q: q, timeout: timeout}
}

// Notify hands t to the queue in the background. Failures are logged only.
func (n *QueueNotifier) Notify(ctx context.Context, t attendance.Transition) {
	body, err := json.Marshal(t)
	if err != nil {
		log.Printf("notify: encode %s for %s: %v", t.Type, t.StudentID, err)
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.q.Publish(pctx, queue.Message{Type: MessageType, Body: body}); err != nil {
			metrics.Notifications.WithLabelValues("dropped").Inc()
			log.Printf("notify: publish %s for %s: %v", t.Type, t.StudentID, err)
		}
	}()
}

// Wait blocks until in-flight publishes finish.
func (n *QueueNotifier) Wait() { n.wg.Wait() }
