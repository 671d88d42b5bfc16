package timemodel

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TimeEstimators", func() {
	It("should always return one", func() {
		out, err := (&AlwaysOneTimeEstimator{}).Estimate(TimeEstimatorInput{Kind: KindApply})

		Expect(err).ToNot(HaveOccurred())
		Expect(out.TimeInSec).To(Equal(1.0))
	})

	It("should return the recorded time", func() {
		out, err := (&RecordedTimeEstimator{}).Estimate(TimeEstimatorInput{
			RecordedTimeInSec: 0.25,
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(out.TimeInSec).To(Equal(0.25))
	})

	Context("with throughput", func() {
		var e *ThroughputTimeEstimator

		BeforeEach(func() {
			e = &ThroughputTimeEstimator{ComputeTimeInSec: 0.01, ElementsPerSecond: 1000}
		})

		It("should use the step time for compute", func() {
			out, err := e.Estimate(TimeEstimatorInput{Kind: KindCompute, TrainerID: 1})

			Expect(err).ToNot(HaveOccurred())
			Expect(out.TimeInSec).To(Equal(0.01))
		})

		It("should scale apply time with the shard size", func() {
			out, err := e.Estimate(TimeEstimatorInput{Kind: KindApply, NumElements: 500})

			Expect(err).ToNot(HaveOccurred())
			Expect(out.TimeInSec).To(Equal(0.5))
		})

		It("should reject unknown kinds and rates", func() {
			_, err := e.Estimate(TimeEstimatorInput{Kind: "prefetch"})
			Expect(err).To(HaveOccurred())

			e.ElementsPerSecond = 0
			_, err = e.Estimate(TimeEstimatorInput{Kind: KindApply})
			Expect(err).To(HaveOccurred())
		})
	})
})
