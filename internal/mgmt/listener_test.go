package mgmt

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBoundedListenerLimitsConcurrentAccepts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	bounded := NewBoundedListener(ln, 1)

	dialDone := make(chan struct{})
	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		defer c.Close()
		close(dialDone)
		time.Sleep(50 * time.Millisecond)
	}()
	<-dialDone

	conn, err := bounded.Accept()
	require.NoError(t, err)
	defer conn.Close()

	acceptSecond := make(chan error, 1)
	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			defer c.Close()
		}
		_, acceptErr := bounded.Accept()
		acceptSecond <- acceptErr
	}()

	select {
	case <-acceptSecond:
		t.Fatal("second Accept must block while the first slot is held")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, conn.Close())

	select {
	case err := <-acceptSecond:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second Accept should unblock once a slot frees up")
	}
}
