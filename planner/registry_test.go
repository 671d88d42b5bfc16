package planner

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/psplanner"
)

var _ = Describe("Registry", func() {
	var p *Plan

	BeforeEach(func() {
		p = buildCTRPlan(psplanner.Sync, 2, 0)
	})

	It("should record flat offsets of dense shards", func() {
		entries := p.Registry().Entries("fc_1.w_0")

		Expect(entries).To(HaveLen(3))
		Expect(entries[0].Offset).To(Equal(0))
		Expect(entries[1].Offset).To(Equal(13336))
		Expect(entries[2].Offset).To(Equal(26672))
		for i, e := range entries {
			Expect(e.BlockID).To(Equal(i))
			Expect(e.IsSlice).To(BeTrue())
			Expect(e.VType).To(Equal(VTypeParam))
		}
		Expect(entries[2].Slice.Shape).To(Equal([]int{3332, 4}))
	})

	It("should record uniform sparse shards without offset", func() {
		entries := p.Registry().Entries("emb@GRAD")

		Expect(entries).To(HaveLen(3))
		for _, e := range entries {
			Expect(e.Offset).To(Equal(-1))
			Expect(e.VType).To(Equal(VTypeGrad))
		}
	})

	It("should record whole variables as their own shard", func() {
		entries := p.Registry().Entries("fc_0.b_0")

		Expect(entries).To(HaveLen(1))
		Expect(entries[0].IsSlice).To(BeFalse())
		Expect(entries[0].Slice.Name).To(Equal("fc_0.b_0"))
		Expect(entries[0].Endpoint).To(Equal(ctrEndpoints[1]))
	})

	It("should answer endpoint queries", func() {
		ep, ok := p.Registry().Endpoint("fc_1.w_0", 0)
		Expect(ok).To(BeTrue())
		Expect(ep).To(Equal(ctrEndpoints[2]))

		_, ok = p.Registry().Endpoint("fc_1.w_0", 7)
		Expect(ok).To(BeFalse())

		Expect(p.Registry().Len()).To(Equal(16))
	})

	It("should list shards in endpoint order", func() {
		locs := p.VarDistributed("fc_1.w_0@GRAD", false)

		Expect(locs).To(Equal([]ShardLocation{
			{Name: "fc_1.w_0@GRAD.block1", Endpoint: ctrEndpoints[0], Size: 3334},
			{Name: "fc_1.w_0@GRAD.block2", Endpoint: ctrEndpoints[1], Size: 3332},
			{Name: "fc_1.w_0@GRAD.block0", Endpoint: ctrEndpoints[2], Size: 3334},
		}))

		Expect(p.VarDistributed("unknown", true)).To(BeEmpty())
	})

	It("should list sparse table shards per server", func() {
		Expect(p.SparseVarNamesOnServer(ctrEndpoints[1])).To(Equal([]string{"emb.block1"}))
		Expect(p.SparseVarNamesOnServer("127.0.0.1:1")).To(BeEmpty())
	})
})
