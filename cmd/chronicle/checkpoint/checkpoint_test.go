package checkpointcmder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("checkpoint command", func() {
	var (
		origCwd string
		out     *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		origCwd, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		base := GinkgoT().TempDir()
		Expect(os.Chdir(base)).To(Succeed())
		Expect(os.MkdirAll(filepath.Join(base, ".chronicle"), 0o755)).To(Succeed())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		Expect(os.Chdir(origCwd)).To(Succeed())
	})

	execute := func(args ...string) error {
		cmd := NewCheckpointCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.ExecuteContext(context.Background())
	}

	It("has create, list, restore and delete subcommands", func() {
		names := []string{}
		for _, c := range NewCheckpointCmd().Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ConsistOf("create", "list", "restore", "delete"))
	})

	It("creates, restores and deletes checkpoints of the project", func() {
		Expect(execute("list")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No checkpoints."))

		out.Reset()
		Expect(execute("create", "-m", "empty world")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Created ckpt_001 at tick 0"))

		out.Reset()
		Expect(execute("restore", "ckpt_001")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("chronicle checkpoint restore ckpt_002"))

		out.Reset()
		Expect(execute("list")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("empty world"))
		Expect(out.String()).To(ContainSubstring("auto: before restoring ckpt_001"))

		Expect(execute("delete", "ckpt_002")).To(Succeed())
		Expect(filepath.Join(".chronicle", "checkpoints", "ckpt_002.json")).NotTo(BeAnExistingFile())
		Expect(filepath.Join(".chronicle", "checkpoints", "ckpt_001.json")).To(BeAnExistingFile())
	})

	It("fails to restore unknown checkpoints", func() {
		Expect(execute("restore", "ckpt_404")).To(MatchError(ContainSubstring("ckpt_404")))
	})
})
