package api

import (
	"github.com/ethane-platform/ethane/link"
	"github.com/ethane-platform/ethane/vnet"
)

// PortInfo describes one attached port.
type PortInfo struct {
	Name     string     `json:"name"`
	HWAddr   string     `json:"hwaddr"`
	Addr     string     `json:"addr"`
	QueueLen int        `json:"queue_len"`
	Received uint64     `json:"received"`
	Stats    link.Stats `json:"stats"`
}

// NeighbourInfo describes one learned binding on a port.
type NeighbourInfo struct {
	Addr   string `json:"addr"`
	HWAddr string `json:"hwaddr"`
	AgeMs  int64  `json:"age_ms"`
}

// PendingInfo describes one outstanding resolution on a port.
type PendingInfo struct {
	Addr   string `json:"addr"`
	Queued int    `json:"queued"`
	Bytes  uint64 `json:"bytes"`
	AgeMs  int64  `json:"age_ms"`
}

// StatusInfo is the segment-wide status.
type StatusInfo struct {
	ClockMs int64 `json:"clock_ms"`
	Ports   int   `json:"ports"`
}

func newPortInfo(state vnet.PortState) PortInfo {
	return PortInfo{
		Name:     state.Name,
		HWAddr:   state.HWAddr.String(),
		Addr:     state.Addr.String(),
		QueueLen: state.QueueLen,
		Received: state.Received,
		Stats:    state.Stats,
	}
}

func newNeighbourInfo(entry link.NeighbourEntry) NeighbourInfo {
	return NeighbourInfo{
		Addr:   entry.Addr.String(),
		HWAddr: entry.LinkAddr.String(),
		AgeMs:  entry.Age.Milliseconds(),
	}
}

func newPendingInfo(summary link.PendingSummary) PendingInfo {
	return PendingInfo{
		Addr:   summary.Addr.String(),
		Queued: summary.Queued,
		Bytes:  summary.Bytes.Bytes(),
		AgeMs:  summary.Age.Milliseconds(),
	}
}
