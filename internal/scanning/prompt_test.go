package scanning

import (
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// exampleShape pulls the literal JSON example out of a template
func exampleShape(text string) map[string]any {
	start := strings.Index(text, "{\n")
	end := strings.LastIndex(text, "}")
	Expect(start).To(BeNumerically(">=", 0))
	var shape map[string]any
	Expect(json.Unmarshal([]byte(text[start:end+1]), &shape)).To(Succeed())
	return shape
}

var _ = Describe("LoadPrompt", func() {
	DescribeTable("embedded templates",
		func(language string, unknownMarker string) {
			prompt, err := LoadPrompt(language)
			Expect(err).NotTo(HaveOccurred())
			Expect(prompt.Version).To(Equal(PromptVersion))
			Expect(prompt.Language).To(Equal(language))
			Expect(prompt.Text).To(ContainSubstring(unknownMarker))

			shape := exampleShape(prompt.Text)
			Expect(shape).To(HaveKey("brand"))
			Expect(shape).To(HaveKey("store"))
			Expect(shape).To(HaveKey("date"))
			Expect(shape).To(HaveKey("total"))
			Expect(shape).To(HaveKey("confidence"))
			Expect(shape).To(HaveKeyWithValue("items", ContainElement(And(HaveKey("name"), HaveKey("price")))))
		},
		Entry("English", "en", `"unknown"`),
		Entry("Japanese", "ja", "unknown"),
	)

	It("should tell the model not to use code fences", func() {
		prompt, err := LoadPrompt("en")
		Expect(err).NotTo(HaveOccurred())
		Expect(prompt.Text).To(ContainSubstring("Do not wrap the JSON in Markdown code fences"))
		Expect(prompt.Text).NotTo(ContainSubstring("```"))
	})

	It("should default to English", func() {
		prompt, err := LoadPrompt("  ")
		Expect(err).NotTo(HaveOccurred())
		Expect(prompt.Language).To(Equal("en"))
	})

	It("should normalize the language", func() {
		prompt, err := LoadPrompt("JA")
		Expect(err).NotTo(HaveOccurred())
		Expect(prompt.Language).To(Equal("ja"))
	})

	It("should reject unknown languages", func() {
		_, err := LoadPrompt("xx")
		Expect(err).To(MatchError(ContainSubstring(`unknown prompt language "xx"`)))
	})

	It("should list the embedded languages", func() {
		Expect(PromptLanguages()).To(ConsistOf("en", "ja"))
	})
})

var _ = Describe("request envelope", func() {
	It("should round trip through decodeRequest", func() {
		data, err := buildRequest("aGVsbG8=", "image/png", "read this")
		Expect(err).NotTo(HaveOccurred())

		images, texts, err := decodeRequest(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(images).To(Equal([]imageSource{{Type: "base64", MediaType: "image/png", Data: "aGVsbG8="}}))
		Expect(texts).To(Equal([]string{"read this"}))
	})

	It("should produce replies extractAnswer understands", func() {
		data, err := encodeResponse(`{"brand":"b"}`, Usage{InputTokens: 3, OutputTokens: 4})
		Expect(err).NotTo(HaveOccurred())

		text, usage, err := extractAnswer(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal(`{"brand":"b"}`))
		Expect(parseUsage(usage)).To(Equal(Usage{InputTokens: 3, OutputTokens: 4}))
	})

	It("should ignore unrecognized usage", func() {
		Expect(parseUsage(json.RawMessage(`"n/a"`))).To(Equal(Usage{}))
		Expect(parseUsage(nil)).To(Equal(Usage{}))
	})
})
