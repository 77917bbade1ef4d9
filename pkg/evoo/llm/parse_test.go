package llm_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evoo/evoo/pkg/evoo/llm"
)

func TestLLM(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LLM Suite")
}

var _ = Describe("ParseAction", func() {
	It("parses tool name and typed parameters", func() {
		tool, params := llm.ParseAction("THOUGHT: scale up\nACTION: scale_horizontal(target_instances=5, service_name=\"api\")")
		Expect(tool).To(Equal("scale_horizontal"))
		Expect(params["target_instances"]).To(Equal(5))
		Expect(params["service_name"]).To(Equal("api"))
	})

	It("parses float parameters", func() {
		_, params := llm.ParseAction("ACTION: scale_vertical(target_cpu=2.5)")
		Expect(params["target_cpu"]).To(Equal(2.5))
	})

	It("returns finish with no parameters", func() {
		tool, params := llm.ParseAction("ACTION: finish()")
		Expect(tool).To(Equal("finish"))
		Expect(params).To(BeEmpty())
	})

	It("returns none when there is no ACTION line", func() {
		tool, params := llm.ParseAction("just some prose with no action")
		Expect(tool).To(Equal("none"))
		Expect(params).To(BeEmpty())
	})
})

var _ = Describe("ParseJSON", func() {
	It("parses a bare JSON object", func() {
		out := llm.ParseJSON(`{"strategy": "restart_service", "overall_score": 8}`)
		Expect(out["strategy"]).To(Equal("restart_service"))
	})

	It("unwraps a fenced code block", func() {
		out := llm.ParseJSON("Here is my answer:\n```json\n{\"verdict\": \"good\"}\n```\nThanks.")
		Expect(out["verdict"]).To(Equal("good"))
	})

	It("extracts embedded JSON amid leading and trailing prose", func() {
		out := llm.ParseJSON(`Sure, here you go: {"analysis": "looks fine"} -- let me know if you need more.`)
		Expect(out["analysis"]).To(Equal("looks fine"))
	})

	It("returns an empty map when nothing parses", func() {
		out := llm.ParseJSON("not json at all")
		Expect(out).To(BeEmpty())
	})
})
