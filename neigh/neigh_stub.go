//go:build !linux

package neigh

import (
	"context"
	"errors"
)

// Run is unavailable off linux; the kernel neighbour table is reached over
// rtnetlink.
func (m *Monitor) Run(ctx context.Context) error {
	return errors.New("neighbour discovery is only supported on linux")
}
