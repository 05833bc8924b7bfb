package lab_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/myth/coroner/internal/lab"
)

var _ = Describe("Trajectory", func() {
	It("encodes parallel series keyed by day", func() {
		p := scenario()
		p.HorizonDays = 3
		traj := mustRecompute(mustController(p))

		data, err := json.Marshal(traj)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("days", ConsistOf(0.0, 1.0, 2.0, 3.0)))
		Expect(decoded).To(HaveKeyWithValue("normalization", "total"))
		Expect(decoded["susceptible"]).To(HaveLen(4))
		Expect(decoded["infectious"]).To(HaveLen(4))
		Expect(decoded["removed"]).To(HaveLen(4))
		Expect(decoded).To(HaveKey("summary"))
	})

	It("summarizes a run without transmission", func() {
		p := scenario()
		p.TransmissionRate = 0
		sum := mustRecompute(mustController(p)).Summary()

		Expect(sum.PeakDay).To(Equal(0))
		Expect(sum.PeakInfectious).To(BeNumerically("~", 10, 1e-9))
		Expect(sum.AttackRate).To(Equal(0.0))
		Expect(sum.R0).To(Equal(0.0))
	})

	It("reports the share of susceptibles infected", func() {
		p := scenario()
		p.HorizonDays = 365
		sum := mustRecompute(mustController(p)).Summary()

		// final size of an R0 = 3 outbreak is about 94%
		Expect(sum.AttackRate).To(BeNumerically("~", 0.94, 0.01))
		Expect(sum.FinalInfectious).To(BeNumerically("<", 1))
	})
})

var _ = Describe("ParseNormalization", func() {
	It("defaults to the total population", func() {
		n, err := lab.ParseNormalization("")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(lab.NormalizeTotal))
	})

	It("accepts the legacy base", func() {
		n, err := lab.ParseNormalization("exclude-removed")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(lab.NormalizeExcludeRemoved))
	})

	It("rejects anything else", func() {
		_, err := lab.ParseNormalization("susceptible")
		Expect(err).To(HaveOccurred())
	})
})
