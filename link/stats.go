package link

// Stats are monotonically increasing interface counters.
type Stats struct {
	// TxFrames counts frames pushed to the outbound queue.
	TxFrames uint64 `json:"tx_frames"`
	// RxFrames counts inbound frames addressed to this interface.
	RxFrames uint64 `json:"rx_frames"`
	// RxDatagrams counts datagrams surfaced to the upper layer.
	RxDatagrams uint64 `json:"rx_datagrams"`
	// ARPRequests counts resolution requests sent.
	ARPRequests uint64 `json:"arp_requests"`
	// ARPReplies counts resolution replies sent.
	ARPReplies uint64 `json:"arp_replies"`
	// Learned counts neighbour bindings learned from inbound messages.
	Learned uint64 `json:"learned"`
	// Discarded counts inbound frames dropped without any effect: frames
	// for other stations, undecodable payloads, unknown EtherTypes.
	Discarded uint64 `json:"discarded"`
	// Dropped counts datagrams lost to expired resolutions or to the
	// pending byte cap.
	Dropped uint64 `json:"dropped"`
}
