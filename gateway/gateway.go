// Command gateway is the system's single point of contact with the
// outside world of payments: it authorizes or rejects each order a
// screen prepares, and durably records every PREPARE/COMMIT/ABORT
// decision to an append-only transaction log.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/lucas-128/heladeria-concurrente/common/metrics"
)

const (
	cmdPrepare = "PREPARE"
	cmdCommit  = "COMMIT"
	cmdAbort   = "ABORT"
	cmdOrders  = "ORDERS"
)

// Gateway authorizes orders and keeps the in-memory order table plus
// the durable transaction log in sync.
type Gateway struct {
	log                 *slog.Logger
	metrics             *metrics.RingMetrics
	rejectionPercentage int
	txLog               *TransactionLog

	listener net.Listener

	mu          sync.Mutex
	nextOrderID uint32
	ordersTable map[uint32]string
}

// NewGateway creates a Gateway that rejects roughly rejectionPercentage
// out of 100 PREPARE requests.
func NewGateway(log *slog.Logger, m *metrics.RingMetrics, rejectionPercentage int, txLog *TransactionLog) *Gateway {
	return &Gateway{
		log:                 log,
		metrics:             m,
		rejectionPercentage: rejectionPercentage,
		txLog:               txLog,
		nextOrderID:         1,
		ordersTable:         make(map[uint32]string),
	}
}

// Serve accepts connections on addr until ctx is canceled or the
// listener is closed. The accept loop and the ctx-driven shutdown
// watcher run under one errgroup, matching the robot ring's Start.
func (g *Gateway) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", addr, err)
	}
	g.listener = listener
	g.log.Info("gateway listening", slog.String("addr", addr))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-gctx.Done()
		return listener.Close()
	})
	group.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("gateway: accept: %w", err)
			}
			go g.handleConnection(conn)
		}
	})
	return group.Wait()
}

// Close tears the gateway down, combining any listener and transaction
// log close errors into one report rather than losing the second to
// the first.
func (g *Gateway) Close() error {
	var result *multierror.Error
	if g.listener != nil {
		if err := g.listener.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := g.txLog.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// handleConnection reads comma-separated commands off the wire and
// dispatches each one, splitting each read's text on command-keyword
// boundaries so several commands arriving in one read are each handled
// in turn.
func (g *Gateway) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadString('\n')
		if line == "" && err != nil {
			return
		}
		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) == 0 || parts[0] == "" {
			continue
		}

		index := 0
		for index < len(parts) {
			segmentEnd := index + 1
			for segmentEnd < len(parts) && !isCommand(parts[segmentEnd]) {
				segmentEnd++
			}
			g.handleMessage(parts[index:segmentEnd], conn)
			index = segmentEnd
		}

		if err != nil {
			return
		}
	}
}

func isCommand(part string) bool {
	switch part {
	case cmdPrepare, cmdCommit, cmdAbort, cmdOrders:
		return true
	default:
		return false
	}
}

func (g *Gateway) handleMessage(parts []string, conn net.Conn) {
	switch parts[0] {
	case cmdPrepare:
		g.handlePrepare(parts, conn)
	case cmdCommit:
		g.handleCommit(parts, conn)
	case cmdAbort:
		g.handleAbort(parts, conn)
	case cmdOrders:
		g.handleOrders(conn)
	default:
		conn.Write([]byte("Unknown command\n"))
	}
}

func (g *Gateway) handlePrepare(parts []string, conn net.Conn) {
	var orderDetails string
	if len(parts) > 1 {
		orderDetails = strings.Join(parts[1:], ",")
	}

	if g.authorizePayment() {
		g.mu.Lock()
		orderID := g.nextOrderID
		g.nextOrderID++
		g.ordersTable[orderID] = orderDetails
		g.mu.Unlock()

		if err := g.txLog.Append(cmdPrepare, orderID, orderDetails); err != nil {
			g.log.Error("failed to write transaction log", slog.Any("error", err))
		}

		g.metrics.RecordMessage("prepare", "recv")
		fmt.Fprintf(conn, "%s,%d\n", cmdCommit, orderID)
		return
	}

	g.metrics.RecordOrder("rejected")
	g.log.Info("rejected order", slog.String("order_details", orderDetails))
	fmt.Fprintf(conn, "%s\n", cmdAbort)
}

func (g *Gateway) handleCommit(parts []string, conn net.Conn) {
	if len(parts) < 2 {
		conn.Write([]byte("Invalid order ID\n"))
		return
	}
	orderID, err := parseOrderID(parts[1])
	if err != nil {
		conn.Write([]byte("Invalid order ID\n"))
		return
	}

	g.mu.Lock()
	details, ok := g.ordersTable[orderID]
	delete(g.ordersTable, orderID)
	g.mu.Unlock()

	if ok {
		if err := g.txLog.Append(cmdCommit, orderID, details); err != nil {
			g.log.Error("failed to write transaction log", slog.Any("error", err))
		}
		g.metrics.RecordOrder("committed")
	}
}

func (g *Gateway) handleAbort(parts []string, conn net.Conn) {
	if len(parts) < 2 {
		conn.Write([]byte("Invalid order ID\n"))
		return
	}
	orderID, err := parseOrderID(parts[1])
	if err != nil {
		conn.Write([]byte("Invalid order ID\n"))
		return
	}

	g.mu.Lock()
	details, ok := g.ordersTable[orderID]
	delete(g.ordersTable, orderID)
	g.mu.Unlock()

	if ok {
		if err := g.txLog.Append(cmdAbort, orderID, details); err != nil {
			g.log.Error("failed to write transaction log", slog.Any("error", err))
		}
		g.metrics.RecordOrder("aborted")
	}
}

func (g *Gateway) handleOrders(conn net.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.WriteString(cmdOrders)
	for orderID, details := range g.ordersTable {
		fmt.Fprintf(&b, ",%d:%s", orderID, details)
	}
	b.WriteByte('\n')
	conn.Write([]byte(b.String()))
}

func (g *Gateway) authorizePayment() bool {
	n := rand.Intn(100)
	return n >= g.rejectionPercentage
}

func parseOrderID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
