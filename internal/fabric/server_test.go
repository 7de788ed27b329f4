package fabric

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"firestige.xyz/nocrw/internal/comm"
	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/log"
)

var _ = Describe("Serve", func() {
	var (
		emu    *Emulator
		c      *comm.Communicator
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		emu = New(Options{BurstReads: true, Logger: log.Nop()})
		conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() {
			defer conn.Close()
			done <- emu.Serve(ctx, conn)
		}()

		c, err = comm.Dial(ctx, conn.LocalAddr().String(), comm.Options{
			ReadTimeout: time.Second,
			ResetDelay:  time.Millisecond,
			Logger:      log.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(c.Close()).To(Succeed())
		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("serves reads and writes over UDP", func() {
		data := seq(3000)
		_, err := c.WriteBurst(dram, 0x4000, data)
		Expect(err).NotTo(HaveOccurred())
		Expect(emu.Peek(dram, 0x4000, len(data))).To(Equal(data))

		got, err := c.Read(dram, 0x4003, 100)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(data[3:103]))
	})

	It("pushes queued prints to the host", func() {
		emu.Print(core.Addr(0, 0), []byte("boot ok\n"))
		Eventually(func() string {
			b, err := c.Receive(100 * time.Millisecond)
			if err != nil {
				return ""
			}
			return string(b)
		}).WithTimeout(2 * time.Second).Should(Equal("boot ok\n"))
	})

	It("delivers messages from the host", func() {
		Expect(c.Send(4, dram, 0x77, seq(40))).To(Succeed())
		Eventually(emu.Messages).Should(ConsistOf(Message{Target: dram, Endpoint: 0x77, Version: 4, Data: seq(40)}))
	})

	It("resets a chip and comes back", func() {
		Expect(c.Reset(context.Background(), 0)).To(Succeed())
		Expect(emu.Resets()).To(Equal([]uint8{0}))
	})
})
