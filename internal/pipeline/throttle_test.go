package pipeline_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrodata.dev/farm-pipeline/internal/pipeline"
)

var _ = Describe("Throttle", func() {
	var (
		clock    time.Time
		throttle *pipeline.Throttle
	)

	newThrottle := func(cfg pipeline.ThrottleConfig) *pipeline.Throttle {
		cfg.Now = func() time.Time { return clock }
		return pipeline.NewThrottle(&cfg)
	}

	highAlert := pipeline.Alert{Type: pipeline.AlertHighTemperature, Priority: pipeline.PriorityHigh}
	criticalAlert := pipeline.Alert{Type: pipeline.AlertSensorFailure, Priority: pipeline.PriorityCritical}

	BeforeEach(func() {
		clock = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
		throttle = newThrottle(pipeline.ThrottleConfig{})
	})

	Context("interval suppression", func() {
		It("emits the first alert and suppresses repeats within the interval", func() {
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())

			clock = clock.Add(time.Minute)
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())

			clock = clock.Add(3 * time.Minute)
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())
		})

		It("emits again once the interval has elapsed", func() {
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())

			clock = clock.Add(pipeline.DefaultAlertInterval)
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())
		})

		It("tracks locations independently", func() {
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())
			Expect(throttle.Allow(highAlert, "loc_2")).To(BeTrue())

			clock = clock.Add(time.Minute)
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())
			Expect(throttle.Allow(highAlert, "loc_2")).To(BeFalse())
		})

		It("tracks alert types independently", func() {
			lowWater := pipeline.Alert{Type: pipeline.AlertLowWaterLevel, Priority: pipeline.PriorityHigh}
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())
			Expect(throttle.Allow(lowWater, "loc_1")).To(BeTrue())
		})
	})

	Context("CRITICAL priority", func() {
		It("always emits, regardless of interval", func() {
			for i := 0; i < 100; i++ {
				Expect(throttle.Allow(criticalAlert, "loc_1")).To(BeTrue())
				clock = clock.Add(time.Second)
			}
		})

		It("extends the quiet interval for same-key non-critical alerts", func() {
			highFailure := pipeline.Alert{Type: pipeline.AlertSensorFailure, Priority: pipeline.PriorityHigh}

			Expect(throttle.Allow(criticalAlert, "loc_1")).To(BeTrue())
			clock = clock.Add(time.Minute)
			Expect(throttle.Allow(highFailure, "loc_1")).To(BeFalse())
		})
	})

	Context("threshold", func() {
		It("requires the configured number of qualifying candidates", func() {
			throttle = newThrottle(pipeline.ThrottleConfig{Threshold: 3})

			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())
		})

		It("resets the count after emission", func() {
			throttle = newThrottle(pipeline.ThrottleConfig{Threshold: 2, Interval: time.Minute})

			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())

			clock = clock.Add(2 * time.Minute)
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())
		})

		It("does not consume the count during the quiet interval", func() {
			throttle = newThrottle(pipeline.ThrottleConfig{Threshold: 2, Interval: time.Minute})

			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())

			// Inside the interval nothing counts.
			clock = clock.Add(30 * time.Second)
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())

			clock = clock.Add(time.Minute)
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeFalse())
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())
		})
	})

	Context("purging", func() {
		It("drops keys idle beyond the retention window", func() {
			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())
			Expect(throttle.Allow(highAlert, "loc_2")).To(BeTrue())
			Expect(throttle.Len()).To(Equal(2))

			clock = clock.Add(30 * time.Minute)
			Expect(throttle.Allow(highAlert, "loc_2")).To(BeTrue())

			clock = clock.Add(45 * time.Minute)
			Expect(throttle.Purge()).To(Equal(1))
			Expect(throttle.Len()).To(Equal(1))
		})

		It("purges probabilistically", func() {
			calls := 0
			rolls := []float64{0.5, 0.05}
			throttle = pipeline.NewThrottle(&pipeline.ThrottleConfig{
				Now:  func() time.Time { return clock },
				Rand: func() float64 { v := rolls[calls]; calls++; return v },
			})

			Expect(throttle.Allow(highAlert, "loc_1")).To(BeTrue())
			clock = clock.Add(2 * time.Hour)

			// First roll is above the purge chance: nothing happens.
			Expect(throttle.MaybePurge()).To(BeZero())
			// Second roll is below it: the stale key goes.
			Expect(throttle.MaybePurge()).To(Equal(1))
		})
	})
})
