package cmd_test

import (
	"bytes"
	"context"
	"os"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/lantern/cmd"
	"github.com/luma/lantern/devserver"
)

var _ = Describe("lantern", func() {
	var out *bytes.Buffer

	run := func(args ...string) error {
		out = bytes.NewBuffer([]byte{})

		cmd.RootCmd.SetOut(out)
		cmd.RootCmd.SetErr(bytes.NewBuffer([]byte{}))
		cmd.RootCmd.SetArgs(args)

		return cmd.RootCmd.ExecuteContext(context.Background())
	}

	BeforeEach(func() {
		os.Setenv("LANTERN_LOG_LEVEL", "error")
	})

	AfterEach(func() {
		os.Unsetenv("LANTERN_LOG_LEVEL")
		os.Unsetenv("LANTERN_SERVERS")
	})

	It("prints the version", func() {
		Expect(run("version")).To(Succeed())
		Expect(out.String()).To(HavePrefix("lantern "))
	})

	Describe("against a server", func() {
		var s *devserver.Server

		BeforeEach(func() {
			s = devserver.New(devserver.Options{Host: "127.0.0.1", ServerID: "CMD1"})
			Expect(s.Start(context.Background())).To(Succeed())

			os.Setenv("LANTERN_SERVERS", s.URL())
		})

		AfterEach(func() {
			Expect(s.Close()).To(Succeed())
		})

		It("prints the server info", func() {
			Expect(run("info")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`"server_id": "CMD1"`))
		})

		It("publishes", func() {
			Expect(run("pub", "updates", "hello")).To(Succeed())
		})

		It("reports requests nobody answers", func() {
			err := run("request", "nobody", "x")
			Expect(err).To(MatchError(ContainSubstring("Nobody is listening on [nobody]")))
		})
	})

	It("fails to connect when nothing is listening", func() {
		os.Setenv("LANTERN_SERVERS", "nats://127.0.0.1:1")

		err := run("info")
		Expect(err).To(HaveOccurred())
	})
})
