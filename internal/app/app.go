// Package app contains the top-level orchestration of a station: it opens
// the packet spool and the radio link named by the configuration and runs
// the ARQ over them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/1ureka/radiolink/internal/arq"
	"github.com/1ureka/radiolink/internal/config"
	"github.com/1ureka/radiolink/internal/packetio"
	"github.com/1ureka/radiolink/internal/status"
	"github.com/1ureka/radiolink/internal/transport"
	"github.com/1ureka/radiolink/internal/util"
)

// Run orchestrates the full station lifecycle:
//  1. Open the packet spool
//  2. Bring up the link (waiting for the peer where the kind needs one)
//  3. Start the stats reporter and the optional status endpoint
//  4. Run the station until ctx is cancelled or the link goes away
//
// A cancelled ctx is a clean shutdown and returns nil.
func Run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	spool, err := packetio.OpenSpool(cfg.PacketIO.Outbox, cfg.PacketIO.Inbox)
	if err != nil {
		return err
	}
	defer spool.Close()

	link, err := openLink(ctx, cfg)
	if err != nil {
		return err
	}
	defer link.Close()

	if cfg.StatusAddr != "" {
		if _, err := status.Serve(ctx, cfg.StatusAddr, status.InfoFrom(cfg)); err != nil {
			return err
		}
	}
	util.StartStatsReporter(ctx)

	return runStation(ctx, cfg, link, spool)
}

// runStation drives the ARQ over an already open link and packet source.
func runStation(ctx context.Context, cfg *config.Config, link transport.Transport, packets packetio.PacketIO) error {
	opts := arq.Options{
		Mode:           arqMode(cfg.Mode),
		ResendInterval: cfg.ResendInterval.Duration,
	}

	util.LogSuccess("%s station up (radio %s ch %d, %s mode, %s link)",
		cfg.Role, cfg.Radio.Address, cfg.Radio.Channel, opts.Mode, cfg.Link.Kind)

	err := arq.NewStation(link, link, packets, opts).Run(ctx)
	switch {
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, transport.ErrClosed):
		return fmt.Errorf("%s link lost: %w", cfg.Link.Kind, err)
	default:
		return err
	}
}

func arqMode(m config.Mode) arq.Mode {
	if m == config.ModeACK {
		return arq.ModeACK
	}
	return arq.ModeNAK
}
