package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/storage/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("CHRONICLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("CHRONICLE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	var (
		driver *postgres.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dsn := connStr()

		var err error
		driver, err = postgres.NewDriver(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())

		// Clean all rows before each test for isolation.
		Expect(driver.Driver.Exec(ctx, "DELETE FROM entities", []any{}, nil)).To(Succeed())
		Expect(driver.Driver.Exec(ctx, "DELETE FROM counters", []any{}, nil)).To(Succeed())
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	It("commits and loads records and counters", func() {
		Expect(driver.Commit(ctx, &storage.Batch{
			Puts: []storage.Record{
				{Kind: "character", ID: "char_001", Body: []byte(`{"id":"char_001"}`)},
				{Kind: "location", ID: "loc_001", Body: []byte(`{"id":"loc_001"}`)},
			},
			Counters: map[string]int{"character": 1, "location": 1},
		})).To(Succeed())

		snap, err := driver.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Records).To(HaveLen(2))
		Expect(snap.Counters).To(Equal(map[string]int{"character": 1, "location": 1}))
	})

	It("upserts on conflict and deletes in the same batch", func() {
		Expect(driver.Commit(ctx, &storage.Batch{
			Puts: []storage.Record{
				{Kind: "lore", ID: "lore_001", Body: []byte(`{"v":1}`)},
				{Kind: "lore", ID: "lore_002", Body: []byte(`{"v":1}`)},
			},
		})).To(Succeed())

		Expect(driver.Commit(ctx, &storage.Batch{
			Puts:    []storage.Record{{Kind: "lore", ID: "lore_002", Body: []byte(`{"v":2}`)}},
			Deletes: []storage.Key{{Kind: "lore", ID: "lore_001"}},
		})).To(Succeed())

		snap, err := driver.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Records).To(HaveLen(1))
		Expect(string(snap.Records[0].Body)).To(Equal(`{"v":2}`))
	})
})
