package fabric

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
)

// pollInterval bounds how long queued traffic waits for a reply to ride on.
const pollInterval = 50 * time.Millisecond

// Serve answers host datagrams on conn until ctx is done. Replies go to the
// sender of the request; queued traffic goes to the last host seen.
func (e *Emulator) Serve(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	e.log.WithField("listen", conn.LocalAddr().String()).Info("fabric emulator serving")

	buf := make([]byte, codec.MaxDatagramLen+1)
	var peer net.Addr
	for {
		if err := conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return err
		}
		n, from, err := conn.ReadFrom(buf)
		if ctx.Err() != nil {
			e.log.Info("fabric emulator stopped")
			return nil
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if peer != nil {
					e.send(conn, peer, e.Drain())
				}
				continue
			}
			return fmt.Errorf("fabric receive: %w", err)
		}

		peer = from
		replies, err := e.Handle(buf[:n])
		if err != nil {
			e.log.WithError(err).WithField(core.FieldPeer, from.String()).Warn("bad datagram from host")
		}
		e.send(conn, from, replies)
	}
}

// ListenAndServe binds addr ("ip:port") and serves until ctx is done.
func (e *Emulator) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return fmt.Errorf("fabric listen %s: %w", addr, err)
	}
	defer conn.Close()
	return e.Serve(ctx, conn)
}

func (e *Emulator) send(conn net.PacketConn, to net.Addr, datagrams [][]byte) {
	for _, d := range datagrams {
		if _, err := conn.WriteTo(d, to); err != nil {
			e.log.WithError(err).WithField(core.FieldPeer, to.String()).Warn("fabric send failed")
			return
		}
	}
}
