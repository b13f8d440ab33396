package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
	"github.com/lucas-128/heladeria-concurrente/common/metrics"
	"github.com/lucas-128/heladeria-concurrente/common/ring"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

func newTestRobot(t *testing.T, id, n int) *Robot {
	t.Helper()
	m := metrics.New("robot_test_" + t.Name())
	r := NewRobot(zap.NewNop(), m, id, n)
	r.ringSender = ring.NewSender(nil)
	r.screenSender = ring.NewSender(nil)
	return r
}

func TestNewRobotBootstrapsLeader(t *testing.T) {
	r := newTestRobot(t, 0, 3)
	require.True(t, r.isLeader.Load())

	other := newTestRobot(t, 1, 3)
	require.False(t, other.isLeader.Load())
}

func TestInitializeNetworkRingLayout(t *testing.T) {
	r := newTestRobot(t, 0, 4)
	next, ok := r.findNextID()
	require.True(t, ok)
	require.Equal(t, 3, next)

	r2 := newTestRobot(t, 2, 4)
	next2, ok := r2.findNextID()
	require.True(t, ok)
	require.Equal(t, 1, next2)
}

func TestHandleElectionBecomesLeaderOnMatchingCandidate(t *testing.T) {
	r := newTestRobot(t, 2, 4)
	r.handleElection(context.Background(), wire.Election{SenderID: 1, CurrentCandidateID: 2, DeadLeaderID: 0})
	require.True(t, r.isLeader.Load())
	require.True(t, r.isLeaderID(2))
}

func TestHandleElectionSmallestIDWins(t *testing.T) {
	r := newTestRobot(t, 1, 4)
	// candidate (3) is larger than our id (1): we overwrite with our id.
	r.handleElection(context.Background(), wire.Election{SenderID: 0, CurrentCandidateID: 3, DeadLeaderID: 0})
	require.False(t, r.isLeader.Load())

	// candidate (0) is smaller than our id (1): passes through unchanged.
	r2 := newTestRobot(t, 1, 4)
	r2.handleElection(context.Background(), wire.Election{SenderID: 0, CurrentCandidateID: 0, DeadLeaderID: 0})
	require.False(t, r2.isLeader.Load())
}

func TestUpdateNetworkRepairsRing(t *testing.T) {
	r := newTestRobot(t, 0, 4)
	// ring: 0->3, 1->0, 2->1, 3->2
	require.True(t, r.isConnectedToMe(3))

	r.networkMu.Lock()
	r.network[3] = 2
	r.networkMu.Unlock()

	r.updateNetwork(2)
	require.Equal(t, int32(3), r.networkSize)
	r.networkMu.Lock()
	succ := r.network[3]
	r.networkMu.Unlock()
	require.Equal(t, 1, succ)
}

func TestIsNetSizeTwo(t *testing.T) {
	r := newTestRobot(t, 0, 2)
	require.True(t, r.isNetSizeTwo())
}

func TestRecoverStockFromLostOrdersFirstUnrefunded(t *testing.T) {
	r := newTestRobot(t, 0, 3)
	before := r.flavorStockSnapshot(flavor.Vanilla)

	lost := &OrdersList{Orders: []Order{
		{OrderID: 1, OrderDetails: flavor.Amounts{flavor.Vanilla: 100}},
		{OrderID: 2, OrderDetails: flavor.Amounts{flavor.Vanilla: 50}},
	}}
	r.recoverStockFromLostOrders(lost)

	after := r.flavorStockSnapshot(flavor.Vanilla)
	// order 0 (id=1) is left as it is, order 1 (id=2) gets its 50 refunded: net +50
	require.Equal(t, before+50, after)
}

func TestReassignLostOrdersRedispatchesEveryOrder(t *testing.T) {
	r := newTestRobot(t, 0, 3)
	lost := &OrdersList{Orders: []Order{
		{OrderID: 1, OrderDetails: flavor.Amounts{flavor.Vanilla: 100}},
		{OrderID: 2, OrderDetails: flavor.Amounts{flavor.Vanilla: 50}},
	}}
	r.reassignLostOrders(lost)

	var all []Order
	for id := 0; id < 3; id++ {
		if list := r.getRobotOrders(id); list != nil {
			all = append(all, list.Orders...)
		}
	}
	require.Len(t, all, 2)
	require.ElementsMatch(t, []int{1, 2}, []int{all[0].OrderID, all[1].OrderID})
}

func TestIsTimestampGreater(t *testing.T) {
	r := newTestRobot(t, 0, 3)
	past := time.Now().Add(-time.Hour)
	require.True(t, r.isTimestampGreater(flavor.Vanilla, past))
}

// flavorStockSnapshot reads the robot-local stock replica directly,
// bypassing the per-flavor token bookkeeping exercised elsewhere.
func (r *Robot) flavorStockSnapshot(f flavor.Flavor) int {
	r.stock.mu.Lock()
	defer r.stock.mu.Unlock()
	return r.stock.table[f]
}
