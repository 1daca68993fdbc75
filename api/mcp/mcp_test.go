package mcp_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/api/mcp"
	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/embeddings/hashing"
	"github.com/papercomputeco/chronicle/pkg/engine"
	chroniclelogger "github.com/papercomputeco/chronicle/pkg/logger"
	"github.com/papercomputeco/chronicle/pkg/seed"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/chronicle/pkg/utils/test"
	"github.com/papercomputeco/chronicle/pkg/vector"
	vectorinmemory "github.com/papercomputeco/chronicle/pkg/vector/inmemory"
	"github.com/papercomputeco/chronicle/pkg/world"
)

func openEngine(ctx context.Context) *engine.Engine {
	e, err := engine.Open(ctx, engine.Options{
		Project:   "harbor",
		Dir:       filepath.Join(GinkgoT().TempDir(), ".chronicle"),
		Config:    config.NewDefaultConfig(),
		Storage:   inmemory.NewDriver(),
		Embedder:  hashing.NewEmbedder(64),
		Vectors:   func(context.Context, string) (vector.Driver, error) { return vectorinmemory.NewDriver(), nil },
		Generator: testutils.NewScriptedGenerator(),
	})
	Expect(err).NotTo(HaveOccurred())

	_, err = e.Seed(ctx, &seed.World{
		Locations: []seed.Location{{Key: "harbor", Name: "Harbor", Atmosphere: "Salt and tar."}},
		Characters: []seed.Character{
			{Key: "mira", FirstName: "Mira", FamilyName: "Vell", Location: "harbor"},
		},
		Lore:  []seed.Lore{{Content: "Salt wards fail at high tide.", Type: "rule", Category: "magic"}},
		Beats: []seed.Beat{{Description: "Mira finds the letter", Characters: []string{"mira"}, Location: "harbor", TensionTarget: 4}},
	})
	Expect(err).NotTo(HaveOccurred())
	return e
}

var _ = Describe("MCP Server", func() {
	var (
		ctx context.Context
		eng *engine.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		eng = openEngine(ctx)
		DeferCleanup(eng.Close)
	})

	Describe("NewServer", func() {
		It("returns an error when the engine is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: chroniclelogger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("engine is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Engine: eng})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("allows a noop server without an engine", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("tools over streamable HTTP", func() {
		var session *gomcp.ClientSession

		BeforeEach(func() {
			server, err := mcp.NewServer(mcp.Config{Engine: eng, Logger: chroniclelogger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			httpServer := httptest.NewServer(server.Handler())
			DeferCleanup(httpServer.Close)

			client := gomcp.NewClient(&gomcp.Implementation{Name: "test", Version: "v0"}, nil)
			session, err = client.Connect(ctx, &gomcp.StreamableClientTransport{Endpoint: httpServer.URL}, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(session.Close)
		})

		call := func(name string, args map[string]any) (*gomcp.CallToolResult, string) {
			res, err := session.CallTool(ctx, &gomcp.CallToolParams{Name: name, Arguments: args})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Content).NotTo(BeEmpty())
			text, ok := res.Content[0].(*gomcp.TextContent)
			Expect(ok).To(BeTrue())
			return res, text.Text
		}

		It("lists the world tools", func() {
			res, err := session.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			names := []string{}
			for _, t := range res.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("search_world", "get_entity", "pending_beats"))
		})

		It("searches lore", func() {
			res, text := call("search_world", map[string]any{"query": "salt wards", "index": "lore", "top_k": 2})
			Expect(res.IsError).To(BeFalse())

			var out mcp.SearchOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Count).To(BeNumerically(">=", 1))
			Expect(out.Results[0].ID).To(Equal("lore_001"))
			Expect(out.Results[0].Kind).To(Equal(string(world.KindLore)))
		})

		It("reports unknown indices as tool errors", func() {
			res, text := call("search_world", map[string]any{"query": "x", "index": "beats"})
			Expect(res.IsError).To(BeTrue())
			Expect(text).To(ContainSubstring("unknown index"))
		})

		It("fetches an entity by id", func() {
			res, text := call("get_entity", map[string]any{"id": "char_001"})
			Expect(res.IsError).To(BeFalse())

			var out mcp.EntityOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Kind).To(Equal("character"))
			Expect(out.Entity).To(HaveKeyWithValue("first_name", "Mira"))
		})

		It("reports missing entities as tool errors", func() {
			res, _ := call("get_entity", map[string]any{"id": "char_404"})
			Expect(res.IsError).To(BeTrue())
		})

		It("lists pending beats with names resolved", func() {
			_, text := call("pending_beats", map[string]any{})

			var out mcp.BeatsOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Beats[0].Characters).To(Equal([]string{"Mira Vell"}))
			Expect(out.Beats[0].Location).To(Equal("Harbor"))
		})
	})
})
