package main

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
	"github.com/lucas-128/heladeria-concurrente/common/metrics"
	"github.com/lucas-128/heladeria-concurrente/common/ring"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

// tokenInfo tracks one flavor's token possession state the way the
// original's FlavorInfo does.
type tokenInfo struct {
	hasToken                  bool
	stock                     int
	lastModificationTimestamp time.Time
}

// Robot is one node of the robot ring.
type Robot struct {
	log     *zap.Logger
	metrics *metrics.RingMetrics

	id          int
	networkSize int32

	isLeader atomic.Bool
	leaderID atomic.Int64

	screenLeaderID atomic.Int64

	tokensMu    sync.Mutex
	tokensTable map[flavor.Flavor]*tokenInfo

	stock       *Stock
	ordersTable *OrdersTable

	networkMu sync.Mutex
	network   map[int]int // robot id -> id of the robot it sends to (its ring successor)

	ringListener *ring.Listener
	ringSender   *ring.Sender

	screenSender *ring.Sender

	prepareCh chan wire.Prepare
	tokenCh   chan wire.Token
}

// NewRobot constructs a Robot with id and initial ring size n. Robot 0
// starts as both ring leader and screen-ring contact point, matching
// the original's bootstrapping convention.
func NewRobot(log *zap.Logger, m *metrics.RingMetrics, id, n int) *Robot {
	r := &Robot{
		log:         log,
		metrics:     m,
		id:          id,
		networkSize: int32(n),
		tokensTable: make(map[flavor.Flavor]*tokenInfo, len(flavor.All)),
		stock:       NewStock(),
		ordersTable: NewOrdersTable(),
		network:     make(map[int]int),
		prepareCh:   make(chan wire.Prepare, 16),
		tokenCh:     make(chan wire.Token, 16),
	}
	r.isLeader.Store(id == 0)
	r.leaderID.Store(0)
	r.screenLeaderID.Store(0)

	for _, f := range flavor.All {
		r.tokensTable[f] = &tokenInfo{stock: flavor.InitialGramsAmount, lastModificationTimestamp: time.Now()}
	}
	r.ordersTable.Initialize(n)
	r.initializeNetwork(n)
	return r
}

// initializeNetwork lays out the initial ring topology: 0 -> n-1,
// 1 -> 0, i -> i-1 for i >= 2, matching the original's bootstrap.
func (r *Robot) initializeNetwork(n int) {
	r.networkMu.Lock()
	defer r.networkMu.Unlock()
	r.network[0] = n - 1
	r.network[1] = 0
	for i := 2; i < n; i++ {
		r.network[i] = i - 1
	}
}

func (r *Robot) isLeaderID(id int) bool {
	return r.leaderID.Load() == int64(id)
}

func (r *Robot) setNewLeader(newLeaderID int) {
	r.leaderID.Store(int64(newLeaderID))
	if r.id == newLeaderID {
		r.isLeader.Store(true)
	}
}

func (r *Robot) setScreenLeader(screenLeaderID int) {
	r.screenLeaderID.Store(int64(screenLeaderID))
}

func (r *Robot) isNetSizeTwo() bool {
	return atomic.LoadInt32(&r.networkSize) == 2
}

// findNextID returns the ring successor this robot currently forwards
// messages to.
func (r *Robot) findNextID() (int, bool) {
	r.networkMu.Lock()
	defer r.networkMu.Unlock()
	id, ok := r.network[r.id]
	return id, ok
}

// findPrevID returns the id that currently forwards to r.id, i.e. the
// robot r.id reads from.
func (r *Robot) findPrevID() (int, bool) {
	r.networkMu.Lock()
	defer r.networkMu.Unlock()
	for key, value := range r.network {
		if value == r.id {
			return key, true
		}
	}
	return 0, false
}

func (r *Robot) isConnectedToMe(deadRobotID int) bool {
	r.networkMu.Lock()
	defer r.networkMu.Unlock()
	successor, ok := r.network[r.id]
	return ok && successor == deadRobotID
}

// updateNetwork repairs the ring topology after dead_id is removed:
// whoever used to forward to dead_id now forwards to whatever dead_id
// used to forward to.
func (r *Robot) updateNetwork(deadID int) {
	atomic.AddInt32(&r.networkSize, -1)

	r.networkMu.Lock()
	defer r.networkMu.Unlock()

	var predecessorOfDead int
	var predecessorFound bool
	for key, value := range r.network {
		if value == deadID {
			predecessorOfDead = key
			predecessorFound = true
			break
		}
	}
	deadSuccessor, deadHadSuccessor := r.network[deadID]
	delete(r.network, deadID)

	if predecessorFound && deadHadSuccessor {
		r.network[predecessorOfDead] = deadSuccessor
	}
}

// hasToken, setTokenStatus, flavorStock, and updateTokensTable mirror
// the original's per-flavor bookkeeping used both by the order handler
// and by token-loss recovery.
func (r *Robot) hasToken(f flavor.Flavor) bool {
	r.tokensMu.Lock()
	defer r.tokensMu.Unlock()
	info, ok := r.tokensTable[f]
	return ok && info.hasToken
}

func (r *Robot) setTokenStatus(f flavor.Flavor, status bool) {
	r.tokensMu.Lock()
	defer r.tokensMu.Unlock()
	if info, ok := r.tokensTable[f]; ok {
		info.hasToken = status
	}
}

func (r *Robot) flavorStock(f flavor.Flavor) int {
	r.tokensMu.Lock()
	defer r.tokensMu.Unlock()
	if info, ok := r.tokensTable[f]; ok {
		return info.stock
	}
	return 0
}

func (r *Robot) updateTokensTable(f flavor.Flavor, readAmount, usedAmount int) {
	r.tokensMu.Lock()
	defer r.tokensMu.Unlock()
	if info, ok := r.tokensTable[f]; ok {
		info.stock = readAmount - usedAmount
		info.lastModificationTimestamp = time.Now()
	}
}

func (r *Robot) isTimestampGreater(f flavor.Flavor, timestamp time.Time) bool {
	r.tokensMu.Lock()
	defer r.tokensMu.Unlock()
	info, ok := r.tokensTable[f]
	return ok && info.lastModificationTimestamp.After(timestamp)
}

// findTargetRobot picks the least-loaded robot to dispatch a fresh
// order to.
func (r *Robot) findTargetRobot() (int, bool) {
	return r.ordersTable.RobotWithLeastOrders()
}

func (r *Robot) addNewOrder(robotID, orderID int, details flavor.Amounts) {
	r.ordersTable.AddOrderForRobot(robotID, orderID, details)
}

func (r *Robot) removeCompletedOrder(robotID, orderID int) {
	r.ordersTable.RemoveOrderForRobot(robotID, orderID)
}

func (r *Robot) removeDeadFromOrdersTable(deadID int) {
	r.ordersTable.RemoveRobot(deadID)
}

func (r *Robot) getRobotOrders(robotID int) *OrdersList {
	return r.ordersTable.RobotOrders(robotID)
}

// initializeTokens mints one token per flavor and sends each onto the
// ring, done once by robot 0 after the ring is fully woven together.
func (r *Robot) initializeTokens() {
	now := time.Now()
	for _, f := range flavor.All {
		r.ringSender.Send(wire.Envelope{
			Kind: wire.KindToken,
			Payload: wire.Token{
				SenderID:                  r.id,
				Flavor:                    int(f),
				LastModifiedByID:          r.id,
				LastModificationTimestamp: now,
				AvailableAmount:           flavor.InitialGramsAmount,
			},
		})
		r.metrics.TokensRemintedTotal.Inc()
	}
}

// useToken simulates filling an order: sleeping proportionally to the
// amount requested, the same SLEEP_FACTOR*grams rule as the original.
func (r *Robot) useToken(token wire.Token, amount int) wire.Token {
	time.Sleep(time.Duration(sleepFactor*amount) * time.Millisecond)
	token.AvailableAmount -= amount
	return token
}

const sleepFactor = 10
