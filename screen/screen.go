// Command screen is one member of the screen ring: it reads its own
// order file, authorizes each order with the gateway, and circulates
// authorized orders around the screen ring so every screen's order
// table can route the eventual Commit/Abort back to whichever screen
// originated it. Only the screen ring's elected leader bridges orders
// to the robot ring's leader.
package main

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/lucas-128/heladeria-concurrente/common/metrics"
	"github.com/lucas-128/heladeria-concurrente/common/ring"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

// Screen is one node of the screen ring.
type Screen struct {
	log     *slog.Logger
	metrics *metrics.RingMetrics

	id          int
	networkSize int32

	isLeader atomic.Bool
	leaderID atomic.Int64

	robotLeaderID atomic.Int64

	orderTable *OrderTable

	networkMu sync.Mutex
	network   map[int]int // screen id -> id of the screen it sends to (its ring successor)

	ringListener *ring.Listener
	ringSender   *ring.Sender

	robotSender   *ring.Sender
	robotBridgeMu sync.Mutex
	robotBridgeConn net.Conn // live robot-bridge connection, if any; compared by identity only

	credits  chan int
	resolved chan wire.Envelope // Commit/Abort for orders this screen originated, read by the order pipeline

	ordersPath  string
	gatewayAddr string
}

// NewScreen constructs a Screen with id and initial ring size n. Screen
// 0 starts as both ring leader and robot-ring contact point, matching
// the original's bootstrapping convention.
func NewScreen(log *slog.Logger, m *metrics.RingMetrics, id, n int, ordersPath, gatewayAddr string) *Screen {
	s := &Screen{
		log:         log,
		metrics:     m,
		id:          id,
		networkSize: int32(n),
		orderTable:  NewOrderTable(),
		network:     make(map[int]int),
		credits:     make(chan int, 16),
		resolved:    make(chan wire.Envelope, 16),
		ordersPath:  ordersPath,
		gatewayAddr: gatewayAddr,
	}
	s.isLeader.Store(id == 0)
	s.leaderID.Store(0)
	s.robotLeaderID.Store(0)
	s.initializeNetwork(n)
	return s
}

// initializeNetwork lays out the initial ring topology: 0 -> n-1,
// 1 -> 0, i -> i-1 for i >= 2, the same bootstrap the robot ring uses.
func (s *Screen) initializeNetwork(n int) {
	s.networkMu.Lock()
	defer s.networkMu.Unlock()
	s.network[0] = n - 1
	s.network[1] = 0
	for i := 2; i < n; i++ {
		s.network[i] = i - 1
	}
}

func (s *Screen) isLeaderID(id int) bool {
	return s.leaderID.Load() == int64(id)
}

func (s *Screen) setNewLeader(newLeaderID int) {
	s.leaderID.Store(int64(newLeaderID))
	if s.id == newLeaderID {
		s.isLeader.Store(true)
	}
}

func (s *Screen) setNewRobotLeader(robotLeaderID int) {
	s.robotLeaderID.Store(int64(robotLeaderID))
}

// findNextID returns the ring successor this screen currently forwards
// messages to.
func (s *Screen) findNextID() (int, bool) {
	s.networkMu.Lock()
	defer s.networkMu.Unlock()
	id, ok := s.network[s.id]
	return id, ok
}

// findPrevID returns the id that currently forwards to s.id, i.e. the
// screen s.id reads from.
func (s *Screen) findPrevID() (int, bool) {
	s.networkMu.Lock()
	defer s.networkMu.Unlock()
	for key, value := range s.network {
		if value == s.id {
			return key, true
		}
	}
	return 0, false
}

func (s *Screen) isConnectedToMe(deadScreenID int) bool {
	s.networkMu.Lock()
	defer s.networkMu.Unlock()
	successor, ok := s.network[s.id]
	return ok && successor == deadScreenID
}

// updateNetwork repairs the ring topology after deadID is removed:
// whoever used to forward to deadID now forwards to whatever deadID
// used to forward to.
func (s *Screen) updateNetwork(deadID int) {
	atomic.AddInt32(&s.networkSize, -1)

	s.networkMu.Lock()
	defer s.networkMu.Unlock()

	var predecessorOfDead int
	var predecessorFound bool
	for key, value := range s.network {
		if value == deadID {
			predecessorOfDead = key
			predecessorFound = true
			break
		}
	}
	deadSuccessor, deadHadSuccessor := s.network[deadID]
	delete(s.network, deadID)

	if predecessorFound && deadHadSuccessor {
		s.network[predecessorOfDead] = deadSuccessor
	}
}
