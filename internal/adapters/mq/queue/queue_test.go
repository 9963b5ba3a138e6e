package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/pitstop/internal/adapters/mq/queue"
	"github.com/okian/pitstop/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with room", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))

		Convey("When tasks are enqueued", func() {
			ok1 := q.Enqueue(ctx, queue.Task{ID: "1", Kind: queue.KindAudit})
			ok2 := q.Enqueue(ctx, queue.Task{ID: "2", Kind: queue.KindCustomerNotification})

			Convey("Then both land and the length reflects it", func() {
				So(ok1, ShouldBeTrue)
				So(ok2, ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 2)
			})

			Convey("Then dequeue delivers them in order", func() {
				out := q.Dequeue(ctx)
				first := <-out
				second := <-out
				So(first.ID, ShouldEqual, "1")
				So(second.ID, ShouldEqual, "2")
			})
		})
	})

	Convey("Given a full queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		So(q.Enqueue(ctx, queue.Task{ID: "1"}), ShouldBeTrue)

		Convey("When another task arrives", func() {
			ok := q.Enqueue(ctx, queue.Task{ID: "2"})

			Convey("Then it is dropped rather than blocking the caller", func() {
				So(ok, ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a closed queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		So(q.Enqueue(ctx, queue.Task{ID: "pre-close"}), ShouldBeTrue)
		So(q.Close(), ShouldBeNil)

		Convey("When a task is enqueued after close", func() {
			ok := q.Enqueue(ctx, queue.Task{ID: "late"})

			Convey("Then the enqueue is rejected", func() {
				So(ok, ShouldBeFalse)
				So(q.IsClosed(), ShouldBeTrue)
			})
		})

		Convey("When the remaining tasks are drained", func() {
			out := q.Dequeue(ctx)

			Convey("Then buffered tasks still arrive before the channel closes", func() {
				task, open := <-out
				So(open, ShouldBeTrue)
				So(task.ID, ShouldEqual, "pre-close")

				select {
				case _, open := <-out:
					So(open, ShouldBeFalse)
				case <-time.After(time.Second):
					So("dequeue channel never closed", ShouldBeEmpty)
				}
			})
		})

		Convey("When close is called again", func() {
			Convey("Then it is idempotent", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
