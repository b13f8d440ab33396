package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
	"github.com/lucas-128/heladeria-concurrente/common/metrics"
	"github.com/lucas-128/heladeria-concurrente/common/ring"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

func newTestScreen(t *testing.T, id, n int) *Screen {
	t.Helper()
	m := metrics.New("screen_test_" + t.Name())
	s := NewScreen(slog.Default(), m, id, n, "unused.json", "127.0.0.1:0")
	s.ringSender = ring.NewSender(nil)
	s.robotSender = ring.NewSender(nil)
	return s
}

func TestNewScreenBootstrapsLeader(t *testing.T) {
	s := newTestScreen(t, 0, 3)
	require.True(t, s.isLeader.Load())

	other := newTestScreen(t, 1, 3)
	require.False(t, other.isLeader.Load())
}

func TestInitializeNetworkRingLayout(t *testing.T) {
	s := newTestScreen(t, 0, 4)
	next, ok := s.findNextID()
	require.True(t, ok)
	require.Equal(t, 3, next)

	s2 := newTestScreen(t, 2, 4)
	next2, ok := s2.findNextID()
	require.True(t, ok)
	require.Equal(t, 1, next2)
}

func TestHandleElectionBecomesLeaderOnMatchingCandidate(t *testing.T) {
	s := newTestScreen(t, 2, 4)
	s.handleElection(context.Background(), wire.Election{SenderID: 1, CurrentCandidateID: 2, DeadLeaderID: 0})
	require.True(t, s.isLeader.Load())
	require.True(t, s.isLeaderID(2))
}

func TestHandleElectionSmallestIDWins(t *testing.T) {
	s := newTestScreen(t, 1, 4)
	s.handleElection(context.Background(), wire.Election{SenderID: 0, CurrentCandidateID: 3, DeadLeaderID: 0})
	require.False(t, s.isLeader.Load())

	s2 := newTestScreen(t, 1, 4)
	s2.handleElection(context.Background(), wire.Election{SenderID: 0, CurrentCandidateID: 0, DeadLeaderID: 0})
	require.False(t, s2.isLeader.Load())
}

func TestUpdateNetworkRepairsRing(t *testing.T) {
	s := newTestScreen(t, 0, 4)
	// ring: 0->3, 1->0, 2->1, 3->2
	require.True(t, s.isConnectedToMe(3))

	s.networkMu.Lock()
	s.network[3] = 2
	s.networkMu.Unlock()

	s.updateNetwork(2)
	require.Equal(t, int32(3), s.networkSize)
	s.networkMu.Lock()
	succ := s.network[3]
	s.networkMu.Unlock()
	require.Equal(t, 1, succ)
}

func TestOrderTableTransfer(t *testing.T) {
	tbl := NewOrderTable()
	tbl.AddOrder(1, 100, flavor.Amounts{flavor.Vanilla: 50})
	tbl.AddOrder(1, 101, flavor.Amounts{flavor.Mint: 25})
	tbl.AddOrder(2, 200, flavor.Amounts{flavor.Chocolate: 10})

	changed := tbl.TransferOrders(1, 3)
	require.ElementsMatch(t, []int{100, 101}, changed)

	screenID, _, ok := tbl.RemoveOrder(100)
	require.True(t, ok)
	require.Equal(t, 3, screenID)

	screenID, _, ok = tbl.RemoveOrder(200)
	require.True(t, ok)
	require.Equal(t, 2, screenID)
}

func TestValidateFlavorsRejectsUnknown(t *testing.T) {
	_, err := validateFlavors(jsonOrder{Flavors: []jsonFlavorLine{{Name: "Vanilla", Grams: 100}}})
	require.NoError(t, err)

	_, err = validateFlavors(jsonOrder{Flavors: []jsonFlavorLine{{Name: "Pistachio", Grams: 100}}})
	require.Error(t, err)
}

func TestPopOrderSkipsInvalidOrders(t *testing.T) {
	pending := []jsonOrder{
		{Flavors: []jsonFlavorLine{{Name: "Vanilla", Grams: 50}}},
		{Flavors: []jsonFlavorLine{{Name: "Pistachio", Grams: 50}}},
	}
	order, rest, ok := popOrder(pending)
	require.True(t, ok)
	require.Equal(t, "Vanilla", order.Flavors[0].Name)
	require.Empty(t, rest)
}

func TestCommitOrderNotifiesOriginatingScreen(t *testing.T) {
	s := newTestScreen(t, 1, 3)
	s.orderTable.AddOrder(1, 42, flavor.Amounts{flavor.Vanilla: 100})

	s.commitOrder(42, true)

	select {
	case env := <-s.resolved:
		require.Equal(t, wire.KindCommit, env.Kind)
		require.Equal(t, 42, env.Payload.(wire.Commit).OrderID)
	default:
		t.Fatal("expected a resolved notification")
	}

	_, _, ok := s.orderTable.RemoveOrder(42)
	require.False(t, ok)
}

func TestCommitOrderFromRingDoesNotNotifyNonOriginator(t *testing.T) {
	leader := newTestScreen(t, 0, 3)
	leader.orderTable.AddOrder(1, 42, flavor.Amounts{flavor.Vanilla: 100})
	leader.commitOrder(42, false)
	select {
	case <-leader.resolved:
		t.Fatal("leader should not notify itself for an order it didn't originate")
	default:
	}
}
