package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
)

func TestOrdersTableRobotWithLeastOrders(t *testing.T) {
	table := NewOrdersTable()
	table.Initialize(3)

	table.AddOrderForRobot(0, 1, flavor.Amounts{flavor.Vanilla: 100})
	table.AddOrderForRobot(0, 2, flavor.Amounts{flavor.Vanilla: 100})
	table.AddOrderForRobot(1, 3, flavor.Amounts{flavor.Mint: 50})

	best, ok := table.RobotWithLeastOrders()
	require.True(t, ok)
	require.Equal(t, 2, best)
}

func TestOrdersTableRemoveOrderForRobot(t *testing.T) {
	table := NewOrdersTable()
	table.Initialize(2)
	table.AddOrderForRobot(0, 1, flavor.Amounts{flavor.Chocolate: 10})
	table.RemoveOrderForRobot(0, 1)

	list := table.RobotOrders(0)
	require.Empty(t, list.Orders)
}

func TestOrdersTableRemoveRobot(t *testing.T) {
	table := NewOrdersTable()
	table.Initialize(2)
	table.RemoveRobot(1)
	require.Nil(t, table.RobotOrders(1))
}

func TestStockSubtractAndAdd(t *testing.T) {
	stock := NewStock()
	require.True(t, stock.HasEnough(flavor.Amounts{flavor.Vanilla: 500}))

	stock.Subtract(flavor.Amounts{flavor.Vanilla: 500})
	require.False(t, stock.HasEnough(flavor.Amounts{flavor.Vanilla: flavor.InitialGramsAmount}))

	stock.Add(flavor.Amounts{flavor.Vanilla: 500})
	require.True(t, stock.HasEnough(flavor.Amounts{flavor.Vanilla: flavor.InitialGramsAmount}))
}
