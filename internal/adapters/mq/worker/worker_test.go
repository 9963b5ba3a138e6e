package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/pitstop/internal/adapters/mq/queue"
	"github.com/okian/pitstop/internal/adapters/mq/worker"
	"github.com/okian/pitstop/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var errSinkDown = errors.New("sink down")

// recordingSink records dispatched task ids and signals each delivery.
type recordingSink struct {
	mu        sync.Mutex
	ids       []string
	failIDs   map[string]struct{}
	delivered chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		failIDs:   map[string]struct{}{},
		delivered: make(chan string, 16),
	}
}

func (s *recordingSink) Dispatch(ctx context.Context, t worker.Task) error {
	s.mu.Lock()
	s.ids = append(s.ids, t.ID)
	s.mu.Unlock()
	s.delivered <- t.ID

	if _, fail := s.failIDs[t.ID]; fail {
		return errSinkDown
	}
	return nil
}

func (s *recordingSink) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func waitFor(c <-chan string) string {
	select {
	case id := <-c:
		return id
	case <-time.After(2 * time.Second):
		return ""
	}
}

func TestWorker(t *testing.T) {
	Convey("Given a worker consuming from a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		sink := newRecordingSink()
		w := worker.NewWorker(q, sink, worker.WithName("test-worker"))
		go w.Run(ctx)

		Convey("When a task is enqueued", func() {
			So(q.Enqueue(ctx, queue.Task{ID: "a", Kind: queue.KindAudit}), ShouldBeTrue)

			Convey("Then the sink receives it", func() {
				So(waitFor(sink.delivered), ShouldEqual, "a")
			})
		})

		Convey("When the sink fails a task", func() {
			sink.failIDs["bad"] = struct{}{}
			So(q.Enqueue(ctx, queue.Task{ID: "bad", Kind: queue.KindAudit}), ShouldBeTrue)
			So(q.Enqueue(ctx, queue.Task{ID: "after", Kind: queue.KindAudit}), ShouldBeTrue)

			Convey("Then the failure is swallowed and later tasks still flow", func() {
				So(waitFor(sink.delivered), ShouldEqual, "bad")
				So(waitFor(sink.delivered), ShouldEqual, "after")
			})
		})

		Convey("When the worker is shut down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()

			err := w.Shutdown(shutdownCtx)

			Convey("Then shutdown completes within the deadline", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a pool of workers over one queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		sink := newRecordingSink()
		pool := worker.NewPool(3, q, sink)
		pool.Start(ctx)

		Convey("When several tasks are enqueued", func() {
			ids := []string{"t1", "t2", "t3", "t4", "t5"}
			for _, id := range ids {
				So(q.Enqueue(ctx, queue.Task{ID: id, Kind: queue.KindCustomerNotification}), ShouldBeTrue)
			}

			Convey("Then every task is delivered exactly once across workers", func() {
				got := map[string]bool{}
				for range ids {
					got[waitFor(sink.delivered)] = true
				}
				for _, id := range ids {
					So(got[id], ShouldBeTrue)
				}
				So(len(sink.seen()), ShouldEqual, len(ids))
			})

			Convey("And the pool stops cleanly afterwards", func() {
				for range ids {
					waitFor(sink.delivered)
				}
				pool.Stop()
			})
		})
	})

	Convey("Given a pool asked for zero workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		pool := worker.NewPool(0, q, newRecordingSink())

		Convey("Then it falls back to the default worker count", func() {
			So(pool, ShouldNotBeNil)
			pool.Stop()
		})
	})
}
