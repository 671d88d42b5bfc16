package planner

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
)

func blockSizes(blocks []Block) []int {
	sizes := make([]int, len(blocks))
	for i, b := range blocks {
		sizes[i] = b.Size
	}

	return sizes
}

var _ = Describe("SliceVariables", func() {
	It("should split an aligned dense variable evenly", func() {
		v := denseVar("fc_1.w_0", 10000, 4)

		blocks, err := SliceVariables([]psplanner.TensorVar{v}, 4, 8192, false)

		Expect(err).ToNot(HaveOccurred())
		Expect(blocks).To(Equal([]Block{
			{VarName: "fc_1.w_0", ID: 0, Size: 10000},
			{VarName: "fc_1.w_0", ID: 1, Size: 10000},
			{VarName: "fc_1.w_0", ID: 2, Size: 10000},
			{VarName: "fc_1.w_0", ID: 3, Size: 10000},
		}))
	})

	It("should emit full-size uniform blocks for sparse tables", func() {
		v := denseVar("emb", 1000, 8)

		blocks, err := SliceVariables([]psplanner.TensorVar{v}, 3, 8192, true)

		Expect(err).ToNot(HaveOccurred())
		Expect(blocks).To(HaveLen(3))
		Expect(blockSizes(blocks)).To(Equal([]int{8000, 8000, 8000}))
	})

	It("should align blocks to rows", func() {
		v := denseVar("w", 10000, 4)

		blocks, err := SliceVariables([]psplanner.TensorVar{v}, 3, 8192, false)

		Expect(err).ToNot(HaveOccurred())
		Expect(blockSizes(blocks)).To(Equal([]int{13336, 13336, 13328}))
		for _, b := range blocks {
			Expect(b.Size % 4).To(Equal(0))
		}
	})

	It("should keep small variables in one block", func() {
		v := denseVar("b", 16)

		blocks, err := SliceVariables([]psplanner.TensorVar{v}, 3, 8192, false)

		Expect(err).ToNot(HaveOccurred())
		Expect(blocks).To(Equal([]Block{{VarName: "b", ID: 0, Size: 16}}))
	})

	It("should not slice when the min block size is -1", func() {
		v := denseVar("w", 10000, 4)

		blocks, err := SliceVariables([]psplanner.TensorVar{v}, 3, NoSlicing, false)

		Expect(err).ToNot(HaveOccurred())
		Expect(blockSizes(blocks)).To(Equal([]int{40000}))
	})

	It("should cover every element exactly once", func() {
		shapes := [][]int{{7}, {9999, 3}, {8192}, {100000}, {3, 5, 7}, {65537, 2}}
		for _, shape := range shapes {
			for s := 1; s <= 5; s++ {
				v := denseVar("v", shape...)

				blocks, err := SliceVariables([]psplanner.TensorVar{v}, s, 1024, false)
				Expect(err).ToNot(HaveOccurred())

				Expect(len(blocks)).To(BeNumerically("<=", s))
				total := 0
				for i, b := range blocks {
					Expect(b.ID).To(Equal(i))
					Expect(b.Size).To(BeNumerically(">", 0))
					total += b.Size
				}
				Expect(total).To(Equal(v.Numel()))
			}
		}
	})

	It("should reject bad arguments", func() {
		vars := []psplanner.TensorVar{denseVar("w", 4)}

		_, err := SliceVariables(vars, 0, 8192, false)
		Expect(errors.Is(err, ErrInvalidArgument)).To(BeTrue())

		_, err = SliceVariables(vars, 2, 0, false)
		Expect(errors.Is(err, ErrInvalidArgument)).To(BeTrue())

		_, err = SliceVariables([]psplanner.TensorVar{denseVar("a:b", 4)}, 2, 8192, false)
		Expect(errors.Is(err, ErrInvalidArgument)).To(BeTrue())
	})
})

var _ = Describe("Block codec", func() {
	It("should round trip", func() {
		b := Block{VarName: "fc_0.w_0@GRAD", ID: 2, Size: 13328}

		Expect(b.String()).To(Equal("fc_0.w_0@GRAD:2:13328"))

		parsed, err := ParseBlock(b.String())
		Expect(err).ToNot(HaveOccurred())
		Expect(parsed).To(Equal(b))
	})

	It("should reject malformed tokens", func() {
		for _, s := range []string{"a:1", "a:b:c:1", "a:x:1", "a:1:y"} {
			_, err := ParseBlock(s)
			Expect(errors.Is(err, ErrInvalidArgument)).To(BeTrue(), s)
		}
	})
})
