package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/pitstop/internal/adapters/store"
	"github.com/okian/pitstop/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMemStore(t *testing.T) {
	Convey("Given an empty in-memory store", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()

		Convey("When a document is set and read back", func() {
			err := st.Set(ctx, "technicians", "t1", map[string]any{"name": "Ada", "rating": 4.5})
			So(err, ShouldBeNil)

			doc, err := st.Get(ctx, "technicians", "t1")

			Convey("Then the fields round-trip", func() {
				So(err, ShouldBeNil)
				So(doc.ID, ShouldEqual, "t1")
				So(doc.Fields["name"], ShouldEqual, "Ada")
				So(doc.Fields["rating"], ShouldEqual, 4.5)
			})

			Convey("Then mutating the returned document does not alter the store", func() {
				doc.Fields["name"] = "mutated"
				again, gerr := st.Get(ctx, "technicians", "t1")
				So(gerr, ShouldBeNil)
				So(again.Fields["name"], ShouldEqual, "Ada")
			})
		})

		Convey("When a missing document is requested", func() {
			_, err := st.Get(ctx, "technicians", "nope")

			Convey("Then the error is the not-found sentinel", func() {
				So(store.IsNotFound(err), ShouldBeTrue)
			})
		})

		Convey("When an empty id is set", func() {
			err := st.Set(ctx, "technicians", "", nil)

			Convey("Then validation rejects it", func() {
				So(errors.Is(err, store.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When Update merges into an existing document", func() {
			So(st.Set(ctx, "requests", "r1", map[string]any{"status": "pending", "customer_id": "c1"}), ShouldBeNil)
			So(st.Update(ctx, "requests", "r1", map[string]any{"status": "assigned"}), ShouldBeNil)

			doc, err := st.Get(ctx, "requests", "r1")

			Convey("Then changed fields are replaced and others preserved", func() {
				So(err, ShouldBeNil)
				So(doc.Fields["status"], ShouldEqual, "assigned")
				So(doc.Fields["customer_id"], ShouldEqual, "c1")
			})
		})

		Convey("When Update targets a missing document", func() {
			err := st.Update(ctx, "requests", "ghost", map[string]any{"status": "assigned"})

			Convey("Then it fails with not-found", func() {
				So(store.IsNotFound(err), ShouldBeTrue)
			})
		})

		Convey("When Add generates ids", func() {
			id1, err1 := st.Add(ctx, "work_orders", map[string]any{"status": "open"})
			id2, err2 := st.Add(ctx, "work_orders", map[string]any{"status": "open"})

			Convey("Then each document gets a distinct id", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(id1, ShouldNotBeEmpty)
				So(id1, ShouldNotEqual, id2)
				So(st.Count("work_orders"), ShouldEqual, 2)
			})
		})

		Convey("When deleting a document", func() {
			So(st.Set(ctx, "cache_entries", "k", map[string]any{"value": 1}), ShouldBeNil)
			So(st.Delete(ctx, "cache_entries", "k"), ShouldBeNil)

			Convey("Then it is gone and re-deleting is not an error", func() {
				_, err := st.Get(ctx, "cache_entries", "k")
				So(store.IsNotFound(err), ShouldBeTrue)
				So(st.Delete(ctx, "cache_entries", "k"), ShouldBeNil)
			})
		})
	})
}

func TestMemStoreQuery(t *testing.T) {
	Convey("Given a store holding several technicians", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()

		So(st.Set(ctx, "technicians", "t1", map[string]any{"available": true, "rating": 4.0}), ShouldBeNil)
		So(st.Set(ctx, "technicians", "t2", map[string]any{"available": false, "rating": 5.0}), ShouldBeNil)
		So(st.Set(ctx, "technicians", "t3", map[string]any{"available": true, "rating": 3.0}), ShouldBeNil)

		Convey("When querying with an equality filter", func() {
			docs, err := st.Query(ctx, "technicians", []store.Filter{store.Eq("available", true)})

			Convey("Then only matching documents return, ordered by id", func() {
				So(err, ShouldBeNil)
				So(len(docs), ShouldEqual, 2)
				So(docs[0].ID, ShouldEqual, "t1")
				So(docs[1].ID, ShouldEqual, "t3")
			})
		})

		Convey("When querying with an in filter", func() {
			docs, err := st.Query(ctx, "technicians", []store.Filter{
				store.In("rating", 4.0, 5.0),
			})

			Convey("Then membership is honored with numeric normalization", func() {
				So(err, ShouldBeNil)
				So(len(docs), ShouldEqual, 2)
			})
		})

		Convey("When ordering and limiting", func() {
			docs, err := st.Query(ctx, "technicians", nil,
				store.WithOrderBy("rating", true),
				store.WithLimit(2),
			)

			Convey("Then the top documents come back in descending order", func() {
				So(err, ShouldBeNil)
				So(len(docs), ShouldEqual, 2)
				So(docs[0].ID, ShouldEqual, "t2")
				So(docs[1].ID, ShouldEqual, "t1")
			})
		})

		Convey("When a filter references an absent field", func() {
			docs, err := st.Query(ctx, "technicians", []store.Filter{store.Eq("ghost", 1)})

			Convey("Then nothing matches", func() {
				So(err, ShouldBeNil)
				So(docs, ShouldBeEmpty)
			})
		})
	})
}

func TestMemStoreTransactions(t *testing.T) {
	Convey("Given a store with a counter document", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()
		So(st.Set(ctx, "rate_windows", "op:1", map[string]any{"count": 1}), ShouldBeNil)

		Convey("When a transaction reads, updates, and re-reads", func() {
			var observed int
			err := st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
				if err := tx.Update(ctx, "rate_windows", "op:1", map[string]any{"count": 2}); err != nil {
					return err
				}
				doc, err := tx.Get(ctx, "rate_windows", "op:1")
				if err != nil {
					return err
				}
				observed, _ = doc.Fields["count"].(int)
				return nil
			})

			Convey("Then the transaction sees its own write", func() {
				So(err, ShouldBeNil)
				So(observed, ShouldEqual, 2)
			})

			Convey("Then the write is committed", func() {
				doc, gerr := st.Get(ctx, "rate_windows", "op:1")
				So(gerr, ShouldBeNil)
				So(doc.Fields["count"], ShouldEqual, 2)
			})
		})

		Convey("When the transaction function fails", func() {
			sentinel := errors.New("abort")
			err := st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
				if serr := tx.Set(ctx, "rate_windows", "op:2", map[string]any{"count": 99}); serr != nil {
					return serr
				}
				return sentinel
			})

			Convey("Then no buffered write is applied", func() {
				So(err, ShouldEqual, sentinel)
				_, gerr := st.Get(ctx, "rate_windows", "op:2")
				So(store.IsNotFound(gerr), ShouldBeTrue)
			})
		})

		Convey("When a transaction deletes then reads the same key", func() {
			err := st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
				if derr := tx.Delete(ctx, "rate_windows", "op:1"); derr != nil {
					return derr
				}
				_, gerr := tx.Get(ctx, "rate_windows", "op:1")
				if !store.IsNotFound(gerr) {
					return errors.New("expected buffered delete to hide the document")
				}
				return nil
			})

			Convey("Then read-your-write covers deletes too", func() {
				So(err, ShouldBeNil)
				So(st.Count("rate_windows"), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a batch of independent writes", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()
		So(st.Set(ctx, "a", "1", map[string]any{"v": 1}), ShouldBeNil)

		Convey("When some operations fail", func() {
			err := st.BatchWrite(ctx, []store.WriteOp{
				{Kind: store.WriteSet, Collection: "a", ID: "2", Fields: map[string]any{"v": 2}},
				{Kind: store.WriteUpdate, Collection: "a", ID: "missing", Fields: map[string]any{"v": 9}},
				{Kind: store.WriteDelete, Collection: "a", ID: "1"},
			})

			Convey("Then the rest still apply and the failure is reported", func() {
				So(err, ShouldNotBeNil)
				So(store.IsNotFound(err), ShouldBeTrue)
				_, gerr := st.Get(ctx, "a", "2")
				So(gerr, ShouldBeNil)
				So(st.Count("a"), ShouldEqual, 1)
			})
		})
	})
}

func TestMemStoreContext(t *testing.T) {
	Convey("Given a canceled context", t, func() {
		st := store.NewMemStore()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("When operations run under it", func() {
			_, getErr := st.Get(ctx, "c", "id")
			setErr := st.Set(ctx, "c", "id", nil)

			Convey("Then they fail with the transient timeout code", func() {
				So(store.IsTransient(getErr), ShouldBeTrue)
				So(store.IsTransient(setErr), ShouldBeTrue)
			})
		})
	})
}

func TestRetry(t *testing.T) {
	Convey("Given a retry policy with recorded sleeps", t, func() {
		ctx := context.Background()
		var sleeps []time.Duration
		r := store.NewRetry(
			store.WithMaxAttempts(4),
			store.WithSleep(func(ctx context.Context, d time.Duration) error {
				sleeps = append(sleeps, d)
				return nil
			}),
		)

		Convey("When the operation fails transiently then recovers", func() {
			calls := 0
			err := r.Do(ctx, "flaky", func(ctx context.Context) error {
				calls++
				if calls < 3 {
					return store.ErrUnavailable
				}
				return nil
			})

			Convey("Then it retries until success", func() {
				So(err, ShouldBeNil)
				So(calls, ShouldEqual, 3)
				So(len(sleeps), ShouldEqual, 2)
			})

			Convey("Then the backoff grows between attempts", func() {
				So(sleeps[0], ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the operation keeps failing transiently", func() {
			calls := 0
			err := r.Do(ctx, "down", func(ctx context.Context) error {
				calls++
				return store.ErrTimeout
			})

			Convey("Then attempts are bounded and the last error returns", func() {
				So(errors.Is(err, store.ErrTimeout), ShouldBeTrue)
				So(calls, ShouldEqual, 4)
			})
		})

		Convey("When the failure is not transient", func() {
			calls := 0
			err := r.Do(ctx, "denied", func(ctx context.Context) error {
				calls++
				return store.ErrPermission
			})

			Convey("Then no retry happens", func() {
				So(errors.Is(err, store.ErrPermission), ShouldBeTrue)
				So(calls, ShouldEqual, 1)
			})
		})

		Convey("When a conflict error occurs", func() {
			calls := 0
			_ = r.Do(ctx, "contended", func(ctx context.Context) error {
				calls++
				return store.ErrConflict
			})

			Convey("Then conflicts count as transient", func() {
				So(calls, ShouldEqual, 4)
			})
		})
	})
}
