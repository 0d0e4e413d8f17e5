package link

import (
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"

	"github.com/ethane-platform/ethane/ipv4"
)

func datagramIDs(datagrams []ipv4.Datagram) []uint16 {
	ids := make([]uint16, 0, len(datagrams))
	for _, dgram := range datagrams {
		ids = append(ids, dgram.ID)
	}
	return ids
}

func TestPendingTakeOrder(t *testing.T) {
	table := newPendingTable()
	table.Open(addrB, newTestDatagram(1), 0)
	require.True(t, table.Append(addrB, newTestDatagram(2), 0))
	require.True(t, table.Append(addrB, newTestDatagram(3), 0))

	datagrams, ok := table.Take(addrB)
	require.True(t, ok)
	require.Equal(t, []uint16{1, 2, 3}, datagramIDs(datagrams))

	// Taking consumes the resolution.
	_, ok = table.Take(addrB)
	require.False(t, ok)
	require.False(t, table.Outstanding(addrB))
}

func TestPendingAppendCap(t *testing.T) {
	// Each test datagram is 24 bytes on the wire.
	table := newPendingTable()
	table.Open(addrB, newTestDatagram(1), 0)

	require.True(t, table.Append(addrB, newTestDatagram(2), 60*datasize.B))
	require.False(t, table.Append(addrB, newTestDatagram(3), 60*datasize.B))
	require.True(t, table.Append(addrB, newTestDatagram(3), 0))
}

func TestPendingAppendWithoutResolution(t *testing.T) {
	table := newPendingTable()
	require.False(t, table.Append(addrB, newTestDatagram(1), 0))
}

func TestPendingSweepCountsDatagrams(t *testing.T) {
	table := newPendingTable()
	table.Open(addrB, newTestDatagram(1), 0)
	table.Append(addrB, newTestDatagram(2), 0)
	table.Open(addrC, newTestDatagram(3), 2*time.Second)

	// Only the first resolution has crossed the TTL.
	require.Equal(t, 2, table.Sweep(6*time.Second, 5*time.Second))
	require.False(t, table.Outstanding(addrB))
	require.True(t, table.Outstanding(addrC))
}

func TestPendingSnapshot(t *testing.T) {
	table := newPendingTable()
	table.Open(addrC, newTestDatagram(1), time.Second)
	table.Open(addrB, newTestDatagram(2), 2*time.Second)
	table.Append(addrB, newTestDatagram(3), 0)

	summaries := table.Snapshot(3 * time.Second)
	require.Len(t, summaries, 2)

	require.Equal(t, addrB, summaries[0].Addr)
	require.Equal(t, 2, summaries[0].Queued)
	require.Equal(t, 48*datasize.B, summaries[0].Bytes)
	require.Equal(t, time.Second, summaries[0].Age)

	require.Equal(t, addrC, summaries[1].Addr)
	require.Equal(t, 1, summaries[1].Queued)
	require.Equal(t, 2*time.Second, summaries[1].Age)
}
