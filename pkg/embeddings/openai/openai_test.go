package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/embeddings"
	"github.com/papercomputeco/chronicle/pkg/embeddings/openai"
)

var _ = Describe("Embedder", func() {
	It("requires an API key", func() {
		_, err := openai.NewEmbedder(openai.EmbedderConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("returns the first embedding", func() {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/embeddings"))
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}]}`))
		}))
		DeferCleanup(server.Close)

		e, err := openai.NewEmbedder(openai.EmbedderConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1", Dimensions: 3})
		Expect(err).NotTo(HaveOccurred())

		vec, err := e.Embed(context.Background(), "a lighthouse")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{0.1, 0.2, 0.3}))
		Expect(got).To(HaveKeyWithValue("model", "text-embedding-3-small"))
		Expect(got).To(HaveKeyWithValue("dimensions", BeNumerically("==", 3)))
	})

	It("wraps API errors in ErrEmbedding", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
		}))
		DeferCleanup(server.Close)

		e, err := openai.NewEmbedder(openai.EmbedderConfig{APIKey: "sk-bad", BaseURL: server.URL + "/v1"})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "x")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})
})
