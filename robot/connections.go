package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucas-128/heladeria-concurrente/common/ring"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

func robotAddr(id int) string {
	return fmt.Sprintf("127.0.0.1:%d", 10000+id)
}

func screenAddr(id int) string {
	return fmt.Sprintf("127.0.0.1:%d", 3000+id)
}

// Start binds the ring listener, then (unless this robot is the bootstrap
// leader) connects to its ring successor, mirroring Robot::run. The
// listener, dispatch loop, and order handler run under one errgroup so
// any of the three exiting tears the whole node down together.
func (r *Robot) Start(ctx context.Context) error {
	instanceID := uuid.NewString()
	r.log = r.log.With(zap.String("instance_id", instanceID))

	listener, err := ring.NewListener(robotAddr(r.id))
	if err != nil {
		return err
	}
	r.ringListener = listener
	r.ringSender = ring.NewSender(func(addr string, err error) {
		r.log.Warn("next robot offline", zap.String("addr", addr), zap.Error(err))
	})
	r.screenSender = ring.NewSender(func(addr string, err error) {
		r.log.Warn("screen leader offline", zap.String("addr", addr), zap.Error(err))
	})

	if r.id != 0 {
		if r.id == int(r.networkSize)-1 {
			r.ringSender.Send(wire.Envelope{Kind: wire.KindAllConnected, Payload: wire.AllConnected{SenderID: r.id}})
		}
		r.connectToNextRobot(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { r.startOrderHandler(gctx); return nil })
	g.Go(func() error { r.dispatchLoop(gctx); return nil })
	g.Go(func() error { return listener.Serve(gctx) })

	return g.Wait()
}

// connectToNextRobot opens this robot's outbound ring connection to its
// current successor, introducing itself first.
func (r *Robot) connectToNextRobot(ctx context.Context) {
	nextID, ok := r.findNextID()
	if !ok {
		r.log.Error("next robot not found")
		return
	}
	r.ringSender.Introduce(ctx, robotAddr(nextID), wire.Envelope{
		Kind:    wire.KindRobotIntroduction,
		Payload: wire.RobotIntroduction{SenderID: r.id},
	})
}

// connectToScreen opens the leader-only bridge to the current screen
// leader, introducing itself as either a fresh leader or a cold-start
// robot.
func (r *Robot) connectToScreen(ctx context.Context, isNewLeaderIntroduction bool) {
	screenID := int(r.screenLeaderID.Load())
	intro := wire.Envelope{Kind: wire.KindRobotIntroduction, Payload: wire.RobotIntroduction{SenderID: r.id}}
	if isNewLeaderIntroduction {
		intro = wire.Envelope{Kind: wire.KindNewLeaderIntroduction, Payload: wire.NewLeaderIntroduction{SenderID: r.id}}
	}
	r.screenSender.Introduce(ctx, screenAddr(screenID), intro)
}

// dispatchLoop drains frames the ring listener accepted and routes
// them to the right handler, the Go analog of handle_incoming_connection
// plus handle_robot_connection's per-frame switch. It also watches
// Closed for the predecessor connection going away, the Go analog of
// handle_robot_connection's Ok(0)/Err branches.
func (r *Robot) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-r.ringListener.Frames:
			if !ok {
				return
			}
			r.metrics.RecordMessage(fmt.Sprintf("%d", in.Envelope.Kind), "recv")
			r.handleFrame(ctx, in.Envelope)
		case _, ok := <-r.ringListener.Closed:
			if !ok {
				return
			}
			r.onPredecessorDied(ctx)
		}
	}
}

// onPredecessorDied is triggered when the inbound ring connection ends,
// meaning the node that used to forward messages to us is gone. It
// repairs our view of the topology, broadcasts DeadRobot so the rest of
// the ring does the same, starts an election if the dead node was the
// leader, and handles the net-size-2 special case where the ring
// collapses onto this single surviving robot rather than leaving
// anyone to forward to.
func (r *Robot) onPredecessorDied(ctx context.Context) {
	deadID, ok := r.findPrevID()
	if !ok {
		return
	}
	wasLeader := r.isLeaderID(deadID)

	if r.isNetSizeTwo() {
		r.networkMu.Lock()
		delete(r.network, deadID)
		r.network[r.id] = r.id
		r.networkMu.Unlock()
		atomic.AddInt32(&r.networkSize, -1)

		r.setNewLeader(r.id)
		r.metrics.ElectionsTotal.Inc()
		r.recoverFromLeaderDeath(ctx, deadID)
		go r.connectToNextRobot(ctx)
		go r.connectToScreen(ctx, true)
		return
	}

	r.updateNetwork(deadID)
	r.ringSender.Send(wire.Envelope{Kind: wire.KindDeadRobot, Payload: wire.DeadRobot{SenderID: r.id, DeadRobotID: deadID}})

	if wasLeader {
		r.ringSender.Send(wire.Envelope{Kind: wire.KindElection, Payload: wire.Election{
			SenderID:           r.id,
			CurrentCandidateID: r.id,
			DeadLeaderID:       deadID,
		}})
	}

	if r.isLeader.Load() {
		r.recoverFromLeaderDeath(ctx, deadID)
	}
}
