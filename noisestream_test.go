package noisestream

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/noisestream/crypto"
	"github.com/opd-ai/noisestream/negotiate"
	"github.com/opd-ai/noisestream/transport"
)

// newTestServer returns a server context with a fresh static credential.
func newTestServer(t *testing.T) *ServerContext {
	t.Helper()
	keys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ctx := NewServerContext()
	ctx.SetStaticKey(keys)
	return ctx
}

// completePair drives a matched pair of handshakes over an in-memory pipe
// until both sides hold a secure stream.
func completePair(t *testing.T) (client, server *SecureStream) {
	t.Helper()

	serverCtx := newTestServer(t)
	clientConn, serverConn := transport.Pipe()

	clientHS := NewClientContext().Handshake(serverCtx.Identity(), clientConn)
	serverHS := serverCtx.Handshake(serverConn)
	client, server = pollBoth(t, clientHS, serverHS)
	return client, server
}

// pollBoth alternates polls until both handshakes complete, bounded so a
// livelock fails instead of hanging.
func pollBoth(t *testing.T, clientHS, serverHS *Handshake) (client, server *SecureStream) {
	t.Helper()

	for i := 0; i < 200 && (client == nil || server == nil); i++ {
		if client == nil {
			stream, done, err := clientHS.Poll()
			require.NoError(t, err, "client poll")
			if done {
				client = stream
			}
		}
		if server == nil {
			stream, done, err := serverHS.Poll()
			require.NoError(t, err, "server poll")
			if done {
				server = stream
			}
		}
	}
	require.NotNil(t, client, "client handshake never completed")
	require.NotNil(t, server, "server handshake never completed")
	return client, server
}

func TestHandshakePairCompletes(t *testing.T) {
	serverCtx := newTestServer(t)
	clientConn, serverConn := transport.Pipe()

	clientHS := NewClientContext().Handshake(serverCtx.Identity(), clientConn)
	serverHS := serverCtx.Handshake(serverConn)

	client, server := pollBoth(t, clientHS, serverHS)
	require.Equal(t, serverCtx.Identity(), client.PeerIdentity())
	require.Len(t, server.PeerIdentity(), crypto.IdentityLength)
}

func TestPayloadRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 4096} {
		client, server := completePair(t)

		payload := make([]byte, size)
		_, err := rand.Read(payload)
		require.NoError(t, err)

		n, err := client.Write(payload)
		require.NoError(t, err)
		require.Equal(t, size, n)
		require.NoError(t, client.Flush())

		got := make([]byte, 0, size)
		buf := make([]byte, 8192)
		for len(got) < size {
			n, err := server.Read(buf)
			require.NoError(t, err)
			got = append(got, buf[:n]...)
		}
		require.True(t, bytes.Equal(payload, got), "payload mismatch at size %d", size)

		// Nothing extra arrives.
		_, err = server.Read(buf)
		require.ErrorIs(t, err, transport.ErrWouldBlock)
	}
}

func TestLargePayloadAcrossWrites(t *testing.T) {
	client, server := completePair(t)

	payload := make([]byte, 3*1024*1024)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	var got bytes.Buffer
	buf := make([]byte, 64*1024)
	off := 0
	for iter := 0; got.Len() < len(payload); iter++ {
		require.Less(t, iter, 1_000_000, "transfer stalled")

		if off < len(payload) {
			end := off + 32*1024
			if end > len(payload) {
				end = len(payload)
			}
			n, err := client.Write(payload[off:end])
			if err != nil {
				require.ErrorIs(t, err, transport.ErrWouldBlock)
			}
			off += n
		} else if err := client.Flush(); err != nil {
			require.ErrorIs(t, err, transport.ErrWouldBlock)
		}

		n, err := server.Read(buf)
		if err != nil {
			require.ErrorIs(t, err, transport.ErrWouldBlock)
		}
		got.Write(buf[:n])
	}

	require.True(t, bytes.Equal(payload, got.Bytes()), "multi-megabyte payload corrupted in transit")
}

func TestWriteOrderPreserved(t *testing.T) {
	client, server := completePair(t)

	for i := 0; i < 20; i++ {
		msg := []byte{byte(i)}
		_, err := client.Write(msg)
		require.NoError(t, err)
	}
	require.NoError(t, client.Flush())

	buf := make([]byte, 64)
	var got []byte
	for len(got) < 20 {
		n, err := server.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	for i, b := range got {
		require.Equal(t, byte(i), b, "byte %d out of order", i)
	}
}

func TestMissingServerCredentialFailsFirstPoll(t *testing.T) {
	_, serverConn := transport.Pipe()

	hs := NewServerContext().Handshake(serverConn)
	stream, done, err := hs.Poll()
	require.Nil(t, stream)
	require.True(t, done, "credential failure must be terminal on the first poll")
	require.ErrorIs(t, err, negotiate.ErrNoCredential)
}

func TestInvalidPeerIdentityFailsFirstPoll(t *testing.T) {
	clientConn, _ := transport.Pipe()

	hs := NewClientContext().Handshake("bogus", clientConn)
	stream, done, err := hs.Poll()
	require.Nil(t, stream)
	require.True(t, done)
	require.Error(t, err)
}

func TestIdentityMismatchSurfacesOnPoll(t *testing.T) {
	serverCtx := newTestServer(t)
	otherKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	clientConn, serverConn := transport.Pipe()
	clientHS := NewClientContext().Handshake(crypto.Identity(otherKeys.Public).String(), clientConn)
	serverHS := serverCtx.Handshake(serverConn)

	for i := 0; i < 200; i++ {
		if serverHS != nil {
			_, done, err := serverHS.Poll()
			require.NoError(t, err)
			if done {
				serverHS = nil
			}
		}

		stream, done, err := clientHS.Poll()
		if done {
			require.Nil(t, stream)
			require.ErrorIs(t, err, negotiate.ErrIdentityMismatch)
			return
		}
		require.NoError(t, err)
	}
	t.Fatal("Identity mismatch never surfaced")
}
