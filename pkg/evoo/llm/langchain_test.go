package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evoo/evoo/pkg/evoo/llm"
)

var _ = Describe("LangchainProvider", func() {
	It("requires a base URL", func() {
		_, err := llm.NewLangchainProvider("key", "", "local-model")
		Expect(err).To(HaveOccurred())
	})

	It("completes against an OpenAI-compatible chat endpoint", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   "local-model",
				"choices": []map[string]any{
					{
						"index":         0,
						"message":       map[string]string{"role": "assistant", "content": "hello from langchain"},
						"finish_reason": "stop",
					},
				},
			})
		}))
		defer server.Close()

		p, err := llm.NewLangchainProvider("key", server.URL, "local-model")
		Expect(err).NotTo(HaveOccurred())

		out, err := p.Complete(context.Background(), llm.Request{SystemPrompt: "s", UserPrompt: "u", MaxTokens: 50})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("hello from langchain"))
	})
})
