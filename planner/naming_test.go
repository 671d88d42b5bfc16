package planner

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Naming", func() {
	It("should split shard names into parts", func() {
		origin, block, trainer := VarNameParts("fc_1.w_0@GRAD.block1.trainer_0")
		Expect(origin).To(Equal("fc_1.w_0@GRAD"))
		Expect(block).To(Equal("block1"))
		Expect(trainer).To(Equal("trainer_0"))

		origin, block, trainer = VarNameParts("fc_0.b_0@GRAD.trainer_3")
		Expect(origin).To(Equal("fc_0.b_0@GRAD"))
		Expect(block).To(BeEmpty())
		Expect(trainer).To(Equal("trainer_3"))

		Expect(OriginVarName("emb.block2")).To(Equal("emb"))
		Expect(OriginVarName("fc_0.w_0")).To(Equal("fc_0.w_0"))
	})

	It("should strip wire suffixes", func() {
		Expect(BaseShardName(TrainerShardName("w.block0", 1))).To(Equal("w.block0"))
		Expect(BaseShardName(DeltaShardName("emb.block2"))).To(Equal("emb.block2"))
		Expect(BaseShardName("w.trainer_x")).To(Equal("w.trainer_x"))
		Expect(ShardName("w", 3)).To(Equal("w.block3"))
	})
})
