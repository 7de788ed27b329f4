package nocrw

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/fabric"
	"firestige.xyz/nocrw/internal/log"
)

// startFabric serves an emulator on a loopback port.
func startFabric(t *testing.T) (*fabric.Emulator, string, int) {
	t.Helper()
	emu := fabric.New(fabric.Options{BurstReads: true, Logger: log.Nop()})
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer conn.Close()
		emu.Serve(ctx, conn)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, port, err := net.SplitHostPort(conn.LocalAddr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return emu, host, p
}

func connect(t *testing.T, host string, port int, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithReadTimeout(500 * time.Millisecond), WithResetDelay(time.Millisecond)}, opts...)
	cl, err := Connect(context.Background(), host, port, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { cl.Close() })
	return cl
}

func TestClientRoundTrip(t *testing.T) {
	emu, host, port := startFabric(t)
	cl := connect(t, host, port)

	data := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, cl.Write(1, 6, 0x1003, data, false))
	assert.Equal(t, data, emu.Peek(fabricTarget(1, 6), 0x1003, len(data)))

	got, err := cl.Read(1, 6, 0x1003, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i)
	}
	require.NoError(t, cl.Write(1, 6, 0x8000, big, true))
	got, err = cl.Read(1, 6, 0x8000, len(big))
	require.NoError(t, err)
	assert.Equal(t, big, got)

	s := cl.Stats()
	assert.NotZero(t, s.DatagramsSent)
	assert.NotZero(t, s.DatagramsReceived)
}

func TestClientSendReceive(t *testing.T) {
	emu, host, port := startFabric(t)
	cl := connect(t, host, port)

	require.NoError(t, cl.Send(2, 1, 6, 10, []byte("ping")))
	assert.Eventually(t, func() bool { return len(emu.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := emu.Messages()[0]
	assert.Equal(t, uint8(2), msg.Version)
	assert.Equal(t, uint32(10), msg.Endpoint)
	assert.Equal(t, []byte("ping"), msg.Data)

	emu.Print(fabricTarget(0, 0), []byte("pong"))
	var got []byte
	assert.Eventually(t, func() bool {
		b, err := cl.Receive(50 * time.Millisecond)
		if err == nil {
			got = b
		}
		return err == nil
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, []byte("pong"), got)
}

func TestClientErrorsNameOperation(t *testing.T) {
	_, host, port := startFabric(t)
	cl := connect(t, host, port)

	_, err := cl.Read(64, 6, 0, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Regexp(t, "^read failed: ", err.Error())

	err = cl.Write(1, 6, 0xFFFFFFFC, make([]byte, 8), false)
	assert.ErrorIs(t, err, ErrAddressOverflow)
	assert.Regexp(t, "^write failed: ", err.Error())

	err = cl.Send(0, 1, 6, 0, make([]byte, 2048*16))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Regexp(t, "^send failed: ", err.Error())
}

func TestClientClose(t *testing.T) {
	_, host, port := startFabric(t)
	cl := connect(t, host, port)

	require.NoError(t, cl.Close())
	require.NoError(t, cl.Close())

	_, err := cl.Read(1, 6, 0, 8)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = cl.Receive(time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, cl.Write(1, 6, 0, []byte{1}, false), ErrClosed)
	assert.ErrorIs(t, cl.Send(0, 1, 6, 0, nil), ErrClosed)
	assert.Equal(t, Stats{}, cl.Stats())
}

func TestClientReset(t *testing.T) {
	emu, host, port := startFabric(t)
	cl := connect(t, host, port, WithChipID(2), WithReset())
	assert.Equal(t, []uint8{2}, emu.Resets())

	require.NoError(t, cl.Reset(context.Background(), 1))
	assert.Equal(t, []uint8{2, 1}, emu.Resets())
}

func TestConnectNoFabric(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	_, err = Connect(context.Background(), "127.0.0.1", port, WithReadTimeout(10*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSelfTestTimeout)
	assert.Regexp(t, "^connect failed: ", err.Error())
	assert.False(t, errors.Is(err, ErrClosed))
}

func TestConnectWithoutSelfTest(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	cl, err := Connect(context.Background(), "127.0.0.1", port, WithoutSelfTest())
	require.NoError(t, err)
	require.NoError(t, cl.Close())
}

func TestClientCapture(t *testing.T) {
	_, host, port := startFabric(t)
	path := filepath.Join(t.TempDir(), "link.pcap")
	cl := connect(t, host, port, WithCapture(path))
	assert.Equal(t, path, cl.CapturePath())

	_, err := cl.Read(1, 6, 0, 16)
	require.NoError(t, err)
	require.NoError(t, cl.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	// pcap header plus self test and read traffic
	assert.Greater(t, info.Size(), int64(24))
}

func TestConnectClosesCaptureOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.pcap")
	_, err := Connect(context.Background(), "127.0.0.1", -1, WithCapture(path))
	require.Error(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	// the header is only flushed on close
	assert.Equal(t, int64(24), info.Size())
}

func fabricTarget(chip, module uint8) core.ModuleAddress {
	return core.Addr(chip, module)
}

func TestReceiveTimeout(t *testing.T) {
	_, host, port := startFabric(t)
	cl := connect(t, host, port)

	_, err := cl.Receive(10 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.False(t, IsTimeout(ErrClosed))
}
