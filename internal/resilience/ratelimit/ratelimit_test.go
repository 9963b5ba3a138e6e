package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/internal/resilience/ratelimit"
	"github.com/okian/pitstop/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeClock is a manually advanced clock for deterministic window tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// brokenTxStore fails every transaction.
type brokenTxStore struct {
	*store.MemStore
}

func (b *brokenTxStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return errors.New("transaction unavailable")
}

func TestLimiter(t *testing.T) {
	Convey("Given a limiter capped at 10 calls per 60s window", t, func() {
		ctx := context.Background()
		clock := newFakeClock()
		st := store.NewMemStore()
		l := ratelimit.New(st,
			ratelimit.WithWindow(60*time.Second),
			ratelimit.WithLimit(10),
			ratelimit.WithNow(clock.Now),
		)

		Convey("When exactly the cap is consumed in one window", func() {
			for i := 0; i < 10; i++ {
				So(l.TryAcquire(ctx, "capacity_calculation"), ShouldBeTrue)
			}

			Convey("Then the eleventh call is denied", func() {
				So(l.TryAcquire(ctx, "capacity_calculation"), ShouldBeFalse)
			})

			Convey("Then a new window resets the counter", func() {
				clock.Advance(60 * time.Second)
				So(l.TryAcquire(ctx, "capacity_calculation"), ShouldBeTrue)
			})

			Convey("Then other operations count independently", func() {
				So(l.TryAcquire(ctx, "other_operation"), ShouldBeTrue)
			})
		})

		Convey("When a denial happens at the cap", func() {
			for i := 0; i < 10; i++ {
				l.TryAcquire(ctx, "op")
			}
			So(l.TryAcquire(ctx, "op"), ShouldBeFalse)

			Convey("Then the denial does not consume quota in the next window", func() {
				clock.Advance(60 * time.Second)
				for i := 0; i < 10; i++ {
					So(l.TryAcquire(ctx, "op"), ShouldBeTrue)
				}
				So(l.TryAcquire(ctx, "op"), ShouldBeFalse)
			})
		})

		Convey("When configuration accessors are read", func() {
			Convey("Then they report the configured values", func() {
				So(l.Limit(), ShouldEqual, 10)
				So(l.Window(), ShouldEqual, 60*time.Second)
			})
		})
	})

	Convey("Given a limiter configured with a sub-second window", t, func() {
		ctx := context.Background()
		l := ratelimit.New(store.NewMemStore(),
			ratelimit.WithWindow(500*time.Millisecond),
			ratelimit.WithLimit(1),
		)

		Convey("When admission is requested", func() {
			Convey("Then the window falls back to the default and admits", func() {
				So(l.Window(), ShouldEqual, 60*time.Second)
				So(l.TryAcquire(ctx, "op"), ShouldBeTrue)
				So(l.TryAcquire(ctx, "op"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a limiter whose store transactions fail", t, func() {
		ctx := context.Background()
		l := ratelimit.New(&brokenTxStore{MemStore: store.NewMemStore()},
			ratelimit.WithLimit(1),
		)

		Convey("When admission is requested", func() {
			Convey("Then the limiter fails open on every call", func() {
				So(l.TryAcquire(ctx, "op"), ShouldBeTrue)
				So(l.TryAcquire(ctx, "op"), ShouldBeTrue)
				So(l.TryAcquire(ctx, "op"), ShouldBeTrue)
			})
		})
	})
}
