package app

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/radiolink/internal/config"
	"github.com/1ureka/radiolink/internal/signaling"
	"github.com/1ureka/radiolink/internal/transport"
)

// openLink brings up the frame carrier named by cfg.Link.Kind. For the
// rendezvous-based kinds the base waits for the mobile to connect.
func openLink(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	l := cfg.Link
	base := cfg.Role == config.RoleBase

	var (
		link transport.Transport
		err  error
	)

	switch l.Kind {
	case config.LinkWebRTC:
		ice := transport.DefaultICE
		if len(l.STUN) > 0 {
			ice.STUN = l.STUN
		}
		if base {
			link, err = signaling.EstablishAsBase(ctx, l.Listen, l.PIN, ice)
		} else {
			link, err = signaling.EstablishAsMobile(ctx, l.Peer, l.PIN, ice)
		}

	case config.LinkWebSocket:
		link, err = openWebSocket(ctx, base, l)

	case config.LinkQUIC:
		if base {
			link, err = transport.ListenQUIC(ctx, l.Listen)
		} else {
			link, err = transport.DialQUIC(ctx, l.Peer)
		}

	case config.LinkUDP:
		link, err = transport.ListenUDP(l.Listen, l.Peer)

	case config.LinkSerial:
		link, err = transport.OpenSerial(l.Device, l.Baud)

	default:
		return nil, fmt.Errorf("%w: unknown link kind %q", config.ErrInvalid, l.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s link: %w", l.Kind, err)
	}

	if l.Loss > 0 {
		link = transport.NewLossy(link, l.Loss, uint64(time.Now().UnixNano()))
	}
	return link, nil
}

func openWebSocket(ctx context.Context, base bool, l config.Link) (transport.Transport, error) {
	if base {
		conn, err := signaling.AcceptWebSocket(ctx, l.Listen, l.PIN)
		if err != nil {
			return nil, err
		}
		return transport.NewWebSocket(conn), nil
	}

	conn, err := signaling.DialWebSocket(ctx, l.Peer, l.PIN)
	if err != nil {
		return nil, err
	}
	return transport.NewWebSocket(conn), nil
}
