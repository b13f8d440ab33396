package main

import (
	"bufio"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucas-128/heladeria-concurrente/common/metrics"
)

func newTestGateway(t *testing.T, rejectionPercentage int) (*Gateway, func()) {
	t.Helper()
	dir := t.TempDir()
	txLog, err := OpenTransactionLog(filepath.Join(dir, "tx.log"))
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	m := metrics.New("gateway_test_" + t.Name())
	gw := NewGateway(log, m, rejectionPercentage, txLog)
	return gw, func() { txLog.Close() }
}

func TestHandlePrepareAlwaysAuthorizedCommits(t *testing.T) {
	gw, cleanup := newTestGateway(t, 0)
	defer cleanup()

	server, client := net.Pipe()
	go gw.handlePrepare([]string{"PREPARE", "Vanilla,100g"}, server)

	reader := bufio.NewReader(client)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "COMMIT,1\n", line)
}

func TestHandlePrepareAlwaysRejectedAborts(t *testing.T) {
	gw, cleanup := newTestGateway(t, 100)
	defer cleanup()

	server, client := net.Pipe()
	go gw.handlePrepare([]string{"PREPARE", "Mint,50g"}, server)

	reader := bufio.NewReader(client)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ABORT\n", line)
}

func TestIsCommand(t *testing.T) {
	require.True(t, isCommand("PREPARE"))
	require.True(t, isCommand("COMMIT"))
	require.True(t, isCommand("ABORT"))
	require.True(t, isCommand("ORDERS"))
	require.False(t, isCommand("Vanilla"))
}

func TestCommitRemovesOrderFromTable(t *testing.T) {
	gw, cleanup := newTestGateway(t, 0)
	defer cleanup()

	gw.mu.Lock()
	gw.ordersTable[1] = "Vanilla,100g"
	gw.mu.Unlock()

	server, _ := net.Pipe()
	go server.Close()
	gw.handleCommit([]string{"COMMIT", "1"}, server)

	gw.mu.Lock()
	_, ok := gw.ordersTable[1]
	gw.mu.Unlock()
	require.False(t, ok)
}
