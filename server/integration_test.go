package server_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bolt-proto/boltd/auth/staticvalidator"
	"github.com/bolt-proto/boltd/backend/sqlitegraph"
	"github.com/bolt-proto/boltd/internal/message"
	"github.com/bolt-proto/boltd/server"
)

func startTestServer() (addr string, stop func()) {
	be, err := sqlitegraph.Open(context.Background(), "file::memory:?cache=shared")
	Expect(err).NotTo(HaveOccurred())

	validator := staticvalidator.New(map[string]string{"u": "p"})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := server.New(server.Config{Addr: "127.0.0.1:0"}, be, validator, log, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = srv.ListenAndServe(ctx)
	}()
	// ListenAndServe binds synchronously before accepting; poll briefly for
	// the listener's address since :0 defers port assignment to the OS.
	Eventually(srv.Addr, time.Second, 5*time.Millisecond).ShouldNot(BeEmpty())

	return srv.Addr(), func() {
		cancel()
		be.Close()
	}
}

var _ = Describe("Bolt connection lifecycle", func() {
	var (
		addr string
		stop func()
	)

	BeforeEach(func() {
		addr, stop = startTestServer()
	})

	AfterEach(func() {
		stop()
	})

	It("negotiates a version, authenticates, and streams a RETURN result", func() {
		c, err := dialTestClient(addr)
		Expect(err).NotTo(HaveOccurred())
		defer c.close()

		Expect(c.handshake(4)).To(Succeed())

		Expect(c.sendStruct(message.TagHello, []any{map[string]any{"user_agent": "spec/1"}})).To(Succeed())
		tag, _, err := c.recvStruct()
		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal(message.TagSuccess))

		Expect(c.sendStruct(message.TagLogon, []any{map[string]any{
			"scheme": "basic", "principal": "u", "credentials": "p",
		}})).To(Succeed())
		tag, _, err = c.recvStruct()
		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal(message.TagSuccess))

		Expect(c.sendStruct(message.TagRun, []any{"RETURN 1 AS x", map[string]any{}, map[string]any{}})).To(Succeed())
		tag, fields, err := c.recvStruct()
		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal(message.TagSuccess))
		md := fields[0].(map[string]any)
		Expect(md["fields"]).To(Equal([]string{"x"}))

		Expect(c.sendStruct(message.TagPull, []any{map[string]any{"n": int64(-1)}})).To(Succeed())
		tag, fields, err = c.recvStruct()
		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal(message.TagRecord))
		Expect(fields[0]).To(Equal([]any{int64(1)}))

		tag, fields, err = c.recvStruct()
		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal(message.TagSuccess))
		md = fields[0].(map[string]any)
		Expect(md["has_more"]).To(Equal(false))
	})

	It("answers an out-of-state message with FAILURE and then accepts RESET", func() {
		c, err := dialTestClient(addr)
		Expect(err).NotTo(HaveOccurred())
		defer c.close()
		Expect(c.handshake(4)).To(Succeed())

		Expect(c.sendStruct(message.TagRun, []any{"RETURN 1", map[string]any{}, map[string]any{}})).To(Succeed())
		tag, _, err := c.recvStruct()
		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal(message.TagFailure))

		Expect(c.sendStruct(message.TagReset, nil)).To(Succeed())
		tag, _, err = c.recvStruct()
		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal(message.TagSuccess))
	})
})
