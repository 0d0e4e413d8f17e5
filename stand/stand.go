// Package stand assembles a runnable stand: a simulated segment with its
// configured hosts, and the inspection API over it.
package stand

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ethane-platform/ethane/api"
	"github.com/ethane-platform/ethane/vnet"
)

type options struct {
	log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		log: zap.NewNop().Sugar(),
	}
}

// Option configures a stand.
type Option func(*options)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Stand is an assembled segment plus API server.
type Stand struct {
	segment *vnet.Segment
	server  *api.Server
	log     *zap.SugaredLogger
}

// New builds the segment, attaches every configured host, and wires the
// API server over it.
func New(cfg *Config, options ...Option) (*Stand, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	segment, err := vnet.New(cfg.Segment, vnet.WithLog(opts.log))
	if err != nil {
		return nil, fmt.Errorf("failed to create segment: %w", err)
	}

	if cfg.Segment != nil {
		for _, host := range cfg.Segment.Hosts {
			if _, err := segment.AttachHost(host, cfg.Link); err != nil {
				return nil, fmt.Errorf("failed to attach host: %w", err)
			}
		}
	}

	return &Stand{
		segment: segment,
		server:  api.New(cfg.API, segment, api.WithLog(opts.log)),
		log:     opts.log,
	}, nil
}

// Segment returns the underlying segment.
func (s *Stand) Segment() *vnet.Segment {
	return s.segment
}

// Run runs the segment and the API server until the context is canceled.
func (s *Stand) Run(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return s.segment.Run(ctx)
	})
	wg.Go(func() error {
		return s.server.Run(ctx)
	})

	return wg.Wait()
}
