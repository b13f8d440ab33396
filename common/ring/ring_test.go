package ring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

func TestListenerDeliversFrame(t *testing.T) {
	l, err := NewListener("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)

	sender := NewSender(nil)
	sender.Introduce(ctx, l.Addr(), wire.Envelope{
		Kind:    wire.KindRobotIntroduction,
		Payload: wire.RobotIntroduction{SenderID: 7},
	})

	select {
	case in := <-l.Frames:
		require.Equal(t, wire.KindRobotIntroduction, in.Envelope.Kind)
		require.Equal(t, 7, in.Envelope.Payload.(wire.RobotIntroduction).SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for introduction frame")
	}
}

func TestSenderSetSuccessorRetiresPriorConnection(t *testing.T) {
	l1, err := NewListener("127.0.0.1:0")
	require.NoError(t, err)
	defer l1.Close()
	l2, err := NewListener("127.0.0.1:0")
	require.NoError(t, err)
	defer l2.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l1.Serve(ctx)
	go l2.Serve(ctx)

	sender := NewSender(nil)
	sender.SetSuccessor(ctx, l1.Addr())
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, l1.Addr(), sender.Successor())

	sender.SetSuccessor(ctx, l2.Addr())
	require.Eventually(t, func() bool {
		return sender.Successor() == l2.Addr()
	}, time.Second, 10*time.Millisecond)

	select {
	case <-l1.Closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection to the prior successor was not closed")
	}
}
