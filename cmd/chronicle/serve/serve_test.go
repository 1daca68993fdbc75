package servecmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	servecmder "github.com/papercomputeco/chronicle/cmd/chronicle/serve"
)

var _ = Describe("NewServeCmd", func() {
	It("registers the listen flag from the registry", func() {
		cmd := servecmder.NewServeCmd()
		f := cmd.Flags().Lookup("listen")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("l"))
		Expect(f.DefValue).To(Equal(":8090"))
	})

	It("registers the project flags once", func() {
		cmd := servecmder.NewServeCmd()
		for _, name := range []string{"sqlite", "storage-provider", "embedding-dimensions", "events-provider"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("no-watch")).NotTo(BeNil())
	})

	It("takes no arguments", func() {
		cmd := servecmder.NewServeCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).To(HaveOccurred())
	})
})
