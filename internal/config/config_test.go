package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/pitstop/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.CacheTTLSeconds, convey.ShouldEqual, 300)
			convey.So(cfg.RateWindowSeconds, convey.ShouldEqual, 60)
			convey.So(cfg.RateLimit, convey.ShouldEqual, 10)
			convey.So(cfg.BreakerThreshold, convey.ShouldEqual, 3)
			convey.So(cfg.BreakerRecoverySeconds, convey.ShouldEqual, 30)
			convey.So(cfg.OptimizeIntervalSeconds, convey.ShouldEqual, 300)
			convey.So(cfg.CapacityRefreshSeconds, convey.ShouldEqual, 60)
			convey.So(cfg.MaxConcurrentPerTech, convey.ShouldEqual, 5)
			convey.So(cfg.StoreTimeoutSeconds, convey.ShouldEqual, 5)
			convey.So(cfg.QueueCapacity, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
		})

		convey.Convey("Then the default skill matrix covers the core service types", func() {
			convey.So(cfg.RequiredSkills["oil_change"], convey.ShouldResemble, []string{"maintenance"})
			convey.So(cfg.RequiredSkills["brake_service"], convey.ShouldResemble, []string{"brakes"})
			convey.So(cfg.RequiredSkills["engine_diagnostics"], convey.ShouldResemble, []string{"diagnostics", "engine"})
		})

		convey.Convey("Then duration accessors derive from the second counts", func() {
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.RateWindow(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.BreakerRecovery(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.OptimizeInterval(), convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.CapacityRefresh(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.StoreTimeout(), convey.ShouldEqual, 5*time.Second)
		})
	})
}
