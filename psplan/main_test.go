package main

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
)

var _ = Describe("psplan", func() {
	run := func(cmd *cobra.Command, args ...string) (string, error) {
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()

		return out.String(), err
	}

	BeforeEach(func() {
		programDir = "../testdata/ctr"
		topologyFile = "../testdata/ctr/topology.yaml"
		roleID = -1
	})

	It("should encode the plan as json", func() {
		out, err := run(newPlanCmd(), "--format", "json")
		Expect(err).ToNot(HaveOccurred())

		var doc planJSON
		Expect(json.Unmarshal([]byte(out), &doc)).To(Succeed())
		Expect(doc.Mode).To(Equal("sync"))
		Expect(doc.WorkerNum).To(Equal(2))
		Expect(doc.Placement).To(HaveLen(3))
		Expect(doc.Placement[2].Grads[0].Name).To(Equal("fc_1.w_0@GRAD.block0"))
		Expect(doc.Placement[2].Grads[0].Bytes).To(Equal(uint64(3334 * 4 * 4)))
		Expect(doc.NumEntries).To(Equal(16))
	})

	It("should reject unknown formats", func() {
		_, err := run(newPlanCmd(), "--format", "xml")
		Expect(err).To(MatchError(ContainSubstring("unknown format")))
	})

	It("should print grad blocks", func() {
		out, err := run(newBlocksCmd(), "--grads")
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("fc_1.w_0@GRAD:0:13336\n"))
	})

	It("should use the trainer id of the role flag", func() {
		roleID = 1

		out, err := run(newContextsCmd(), "--kind", "send")
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("fc_0.b_0@GRAD.trainer_1"))
	})

	It("should reject receive types out of range", func() {
		_, err := run(newContextsCmd(), "--kind", "recv", "--recv-type", "4")
		Expect(err).To(HaveOccurred())
	})

	It("should replay the plan", func() {
		out, err := run(newSimulateCmd(), "--steps", "1")
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("Simulation (sync"))
		Expect(out).To(ContainSubstring("1/1"))
		Expect(out).ToNot(ContainSubstring("unfinished"))
	})
})
