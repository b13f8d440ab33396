// Package wire defines every message exchanged over the screen and robot
// rings and encodes them as length-prefixed, gob-encoded frames.
//
// Every struct here mirrors one variant of the original system's
// MessageType union one field at a time, so a robot or screen written
// against this package observes exactly the same protocol the original
// specified, just carried over a Go-native framing instead of bincode.
package wire

import "time"

// Kind discriminates which payload a frame carries.
type Kind byte

const (
	KindDeadRobot Kind = iota
	KindNewLeader
	KindElection
	KindRemoveRobot
	KindAllConnected
	KindToken
	KindPrepare
	KindKill
	KindNewOrder
	KindRobotIntroduction
	KindScreenIntroduction
	KindOrderComplete
	KindOrderDelivered
	KindUpdateStock
	KindPossibleLostToken
	KindTokenFound
	KindCommit
	KindAbort
	KindUpdateScreenLeader
	KindNewLeaderIntroduction
	KindScreenOrder
	KindOrderScreen
	KindDeadScreen
	KindUpdateRobotLeader
)

// DeadRobot announces that sender_id observed dead_robot_id as
// unreachable on the ring.
type DeadRobot struct {
	SenderID    int
	DeadRobotID int
}

// NewLeader announces the outcome of a completed Chang-Roberts election.
type NewLeader struct {
	SenderID     int
	NewLeaderID  int
	DeadLeaderID int
}

// Election carries a leader candidate around the ring. CurrentCandidateID
// is rewritten in place per spec: keep the smaller of itself and the
// local id, forward the result; if it already equals the local id, the
// local node is the new leader.
type Election struct {
	SenderID           int
	CurrentCandidateID int
	DeadLeaderID       int
}

// RemoveRobot asks every ring member to drop a robot from their
// bookkeeping (orders table, stock-compensation accounting) once its
// death has been fully processed.
type RemoveRobot struct {
	RobotID int
}

// AllConnected is sent at startup by the last node of a ring (robot or
// screen) and forwarded down to node 0, which then connects to its own
// successor to close the ring.
type AllConnected struct {
	SenderID int
}

// Token is the circulating, per-flavor resource token. Holding it is
// what grants a robot the exclusive right to deduct from that flavor's
// stock.
type Token struct {
	SenderID                  int
	Flavor                    int // flavor.Flavor
	LastModifiedByID          int
	LastModificationTimestamp time.Time
	AvailableAmount           int // grams
}

// Prepare asks a specific robot to produce one order's line items.
type Prepare struct {
	SenderID     int
	TargetID     int
	OrderID      int
	OrderDetails map[int]int // flavor.Flavor -> grams
}

// Kill is a sentinel record with no fields. The ring Sender does not
// interpret it: a Kill queued with Send is written to the successor like
// any other frame, and the receiving node ignores it. A sender's
// connection is retired by SetSuccessor or Introduce instead, which
// close the previous run loop's kill channel.
type Kill struct{}

// NewOrder is the robot-leader's dispatch of a freshly stock-checked
// order to the robot chosen to make it.
type NewOrder struct {
	TargetID     int
	OrderID      int
	OrderDetails map[int]int
}

// RobotIntroduction is sent once by a robot joining the ring so its
// neighbor can learn its id.
type RobotIntroduction struct {
	SenderID int
}

// ScreenIntroduction is the screen-ring analog of RobotIntroduction.
type ScreenIntroduction struct {
	SenderID int
}

// OrderComplete reports that a robot finished preparing an order.
type OrderComplete struct {
	RobotIDMaker int
	OrderID      int
}

// OrderDelivered reports that a completed order has been handed off to
// the screen that originated it.
type OrderDelivered struct {
	RobotIDMaker int
	OrderID      int
}

// UpdateStock propagates a stock delta (subtraction on dispatch,
// addition on compensation) to every robot so each keeps a consistent
// replica of every flavor's stock.
type UpdateStock struct {
	ModifiedValues map[int]int
	Timestamp      time.Time
	Subtract       bool
}

// PossibleLostToken is the robot-leader's probe, sent after a robot
// death, for a flavor whose token the leader does not currently hold.
type PossibleLostToken struct {
	Flavor    int
	Timestamp time.Time
	Stock     int
}

// TokenFound answers a PossibleLostToken probe: the named flavor's token
// is still alive somewhere on the ring, so no re-mint is needed.
type TokenFound struct {
	Flavor int
}

// Commit reports that an order has been produced. The robot leader
// sends it over the robot/screen bridge to the screen leader, which
// passes it around the screen ring to the originating screen.
type Commit struct {
	OrderID int
}

// Abort reports that the robot leader refused an order because stock
// did not cover it. It travels the same way as Commit, from the robot
// leader to the originating screen; stock is not changed for it.
type Abort struct {
	OrderID int
}

// UpdateScreenLeader informs the robot ring who the current screen
// leader is, so the robot leader knows where to open its order bridge.
type UpdateScreenLeader struct {
	ScreenLeaderID int
}

// NewLeaderIntroduction is what a robot sends the screen ring instead
// of RobotIntroduction when it is opening the leader/screen bridge
// because it just became the new robot leader (rather than at cold
// start), so the screen side knows to treat it as a leader handoff.
// The screen leader answers with its own NewLeaderIntroduction, and the
// robot leader replies to that with a plain RobotIntroduction.
type NewLeaderIntroduction struct {
	SenderID int
}

// ScreenOrder is the raw order a screen sends its connected robot
// leader over the leader/screen bridge, before the leader has picked
// which robot will make it. The leader's stock check and
// find_target_robot decision turn this into a NewOrder broadcast plus
// a Prepare dispatch.
type ScreenOrder struct {
	ScreenID     int
	OrderID      int
	OrderDetails map[int]int
}

// OrderScreen is a freshly authorized order, circulated around the
// screen ring so every screen's order table learns who originated it
// (for later Commit/Abort routing back to that screen), before the
// screen leader turns it into a ScreenOrder sent over the robot
// bridge.
type OrderScreen struct {
	SenderID     int
	OrderID      int
	OrderDetails map[int]int
}

// DeadScreen announces that sender_id observed dead_screen_id as
// unreachable on the screen ring, the screen-ring analog of DeadRobot.
type DeadScreen struct {
	SenderID     int
	DeadScreenID int
}

// UpdateRobotLeader tells the screen ring who the current robot leader
// is, sent when a freshly elected robot leader introduces itself to the
// screen leader with NewLeaderIntroduction.
type UpdateRobotLeader struct {
	RobotLeaderID int
}
