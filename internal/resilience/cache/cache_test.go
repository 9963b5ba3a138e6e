package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/internal/resilience/cache"
	"github.com/okian/pitstop/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeClock is a manually advanced clock for deterministic TTL tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// failingStore wraps a MemStore and fails selected operations.
type failingStore struct {
	*store.MemStore
	failSet bool
	failGet bool
}

var errStoreDown = errors.New("store unavailable")

func (f *failingStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if f.failSet {
		return errStoreDown
	}
	return f.MemStore.Set(ctx, collection, id, fields)
}

func (f *failingStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if f.failGet {
		return store.Document{}, errStoreDown
	}
	return f.MemStore.Get(ctx, collection, id)
}

func TestCache(t *testing.T) {
	Convey("Given a cache with a five minute TTL", t, func() {
		ctx := context.Background()
		clock := newFakeClock()
		st := store.NewMemStore()
		c := cache.New(st,
			cache.WithTTL(5*time.Minute),
			cache.WithNow(clock.Now),
		)

		Convey("When a value is set and read back immediately", func() {
			So(c.Set(ctx, "capacity:current", "snapshot"), ShouldBeNil)
			value, ok := c.Get(ctx, "capacity:current")

			Convey("Then the cached value is returned", func() {
				So(ok, ShouldBeTrue)
				So(value, ShouldEqual, "snapshot")
			})
		})

		Convey("When the TTL elapses", func() {
			So(c.Set(ctx, "capacity:current", "snapshot"), ShouldBeNil)
			clock.Advance(5*time.Minute + time.Second)

			value, ok := c.Get(ctx, "capacity:current")

			Convey("Then the read is a miss", func() {
				So(ok, ShouldBeFalse)
				So(value, ShouldBeNil)
			})

			Convey("Then the expired entry is deleted from the store", func() {
				So(st.Count("cache_entries"), ShouldEqual, 0)
			})
		})

		Convey("When a value is read just inside the TTL", func() {
			So(c.Set(ctx, "k", 42), ShouldBeNil)
			clock.Advance(5 * time.Minute)

			_, ok := c.Get(ctx, "k")

			Convey("Then it is still a hit", func() {
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When a key was never set", func() {
			_, ok := c.Get(ctx, "unknown")

			Convey("Then the read is a plain miss", func() {
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a cache over a failing store", t, func() {
		ctx := context.Background()
		fs := &failingStore{MemStore: store.NewMemStore()}
		c := cache.New(fs)

		Convey("When the write path fails", func() {
			fs.failSet = true
			err := c.Set(ctx, "k", "v")

			Convey("Then Set surfaces a wrapped cache write error", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, cache.ErrCacheWrite), ShouldBeTrue)
			})
		})

		Convey("When the read path fails", func() {
			fs.failSet = false
			So(c.Set(ctx, "k", "v"), ShouldBeNil)
			fs.failGet = true

			_, ok := c.Get(ctx, "k")

			Convey("Then the failure degrades to a miss", func() {
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a cache holding several prefixed entries", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()
		c := cache.New(st)

		So(c.Set(ctx, "capacity:current", 1), ShouldBeNil)
		So(c.Set(ctx, "capacity:forecast", 2), ShouldBeNil)
		So(c.Set(ctx, "other:thing", 3), ShouldBeNil)

		Convey("When a prefix is invalidated", func() {
			So(c.Invalidate(ctx, "capacity:"), ShouldBeNil)

			Convey("Then only matching entries are removed", func() {
				_, capOK := c.Get(ctx, "capacity:current")
				_, otherOK := c.Get(ctx, "other:thing")
				So(capOK, ShouldBeFalse)
				So(otherOK, ShouldBeTrue)
				So(st.Count("cache_entries"), ShouldEqual, 1)
			})
		})
	})
}
