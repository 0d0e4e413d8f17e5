package vnet

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
)

const captureSnapLen = 65536

// capture records delivered frames as a pcap stream so an exchange can be
// replayed in wireshark or tcpdump. Timestamps are the capture's wall-clock
// start plus the simulated time of delivery.
type capture struct {
	w      *pcapgo.Writer
	closer io.Closer
	base   time.Time
}

func newCapture(w io.Writer, closer io.Closer) (*capture, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(captureSnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write capture file header: %w", err)
	}

	return &capture{
		w:      pw,
		closer: closer,
		base:   time.Now(),
	}, nil
}

func newFileCapture(path string) (*capture, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}

	c, err := newCapture(file, file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return c, nil
}

func (c *capture) WritePacket(raw []byte, at time.Duration) error {
	info := gopacket.CaptureInfo{
		Timestamp:     c.base.Add(at),
		CaptureLength: len(raw),
		Length:        len(raw),
	}

	if err := c.w.WritePacket(info, raw); err != nil {
		return fmt.Errorf("failed to write capture packet: %w", err)
	}
	return nil
}

func (c *capture) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
