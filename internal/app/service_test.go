package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/pitstop/internal/adapters/store"
	service "github.com/okian/pitstop/internal/app"
	"github.com/okian/pitstop/internal/domain/model"
	"github.com/okian/pitstop/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// newService builds a started service with background loops disabled so
// tests drive every pass explicitly.
func newService(ctx context.Context, st store.DocumentStore) *service.Service {
	svc := service.New(
		service.WithStore(st),
		service.WithOptimizeInterval(0),
		service.WithCapacityRefresh(0),
		service.WithWorkerCount(1),
		service.WithRequiredSkills(map[string][]string{
			"oil_change": {"maintenance"},
		}),
	)
	if err := svc.Start(ctx); err != nil {
		panic(err)
	}
	return svc
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given an unstarted service", t, func() {
		svc := service.New(
			service.WithOptimizeInterval(0),
			service.WithCapacityRefresh(0),
		)

		Convey("When stats are read before start", func() {
			stats := svc.GetStats()

			Convey("Then only static fields are present", func() {
				So(stats["started"], ShouldBeFalse)
				So(stats, ShouldNotContainKey, "queueLength")
			})
		})

		Convey("When started and stopped", func() {
			ctx := context.Background()
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
				svc.Stop()
			})

			Convey("Then running stats expose the queue and breakers", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["queueLength"], ShouldEqual, 0)
				So(stats["inFlightAssignments"], ShouldEqual, 0)
				So(stats, ShouldContainKey, "breakers")
				svc.Stop()
			})

			Convey("Then stopping twice is safe", func() {
				svc.Stop()
				svc.Stop()
			})
		})
	})
}

func TestServiceAssignFlow(t *testing.T) {
	Convey("Given a started service over a seeded store", t, func() {
		ctx := context.Background()
		st := store.NewMemStore()
		svc := newService(ctx, st)
		defer svc.Stop()

		techID, err := svc.CreateTechnician(ctx, model.Technician{
			Name:      "Ada",
			Skills:    []string{"maintenance"},
			Available: true,
			Rating:    4.5,
		})
		So(err, ShouldBeNil)

		reqID, err := svc.CreateRequest(ctx, model.ServiceRequest{
			CustomerID:  "c1",
			ServiceType: "oil_change",
		})
		So(err, ShouldBeNil)

		Convey("When the request is assigned end to end", func() {
			result, err := svc.Assign(ctx, reqID)

			Convey("Then the only eligible technician wins", func() {
				So(err, ShouldBeNil)
				So(result.TechnicianID, ShouldEqual, techID)
				So(result.WorkOrderID, ShouldNotBeEmpty)
			})

			Convey("Then the capacity snapshot reflects the new work order", func() {
				snap, cerr := svc.Capacity(ctx)
				So(cerr, ShouldBeNil)
				So(snap.AvailableTechnicians, ShouldEqual, 1)
				So(snap.UsedCapacity, ShouldEqual, 1)
			})

			Convey("Then an optimizer pass over the balanced shop does nothing", func() {
				res, oerr := svc.Optimize(ctx)
				So(oerr, ShouldBeNil)
				So(res.Reassigned, ShouldEqual, 0)
				So(res.Filled, ShouldEqual, 0)
			})
		})

		Convey("When defaults fill in the created request", func() {
			doc, gerr := st.Get(ctx, model.CollectionRequests, reqID)

			Convey("Then status and join time are populated", func() {
				So(gerr, ShouldBeNil)
				So(doc.Fields["status"], ShouldEqual, model.RequestPending)
				So(doc.Fields["joined_at"], ShouldHappenAfter, time.Time{})
			})
		})

		Convey("When breaker states are inspected", func() {
			states := svc.BreakerStates()

			Convey("Then the map is present even before any circuit trips", func() {
				So(states, ShouldNotBeNil)
			})
		})
	})
}
