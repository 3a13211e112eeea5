package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/1ureka/radiolink/internal/protocol"
	"github.com/1ureka/radiolink/internal/util"
)

const quicALPN = "radiolink"

// quicConfig enables RFC 9221 datagrams, which are unreliable and unordered
// like the radio.
var quicConfig = &quic.Config{
	EnableDatagrams: true,
	KeepAlivePeriod: 5 * time.Second,
	MaxIdleTimeout:  30 * time.Second,
}

// QUIC carries one frame per QUIC datagram.
type QUIC struct {
	conn     *quic.Conn
	listener *quic.Listener // base only
	inbox    *inbox

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// ListenQUIC waits on addr for the mobile station and returns the first
// connection. A self-signed certificate is generated for the handshake.
func ListenQUIC(ctx context.Context, addr string) (*QUIC, error) {
	tlsConf, err := generateTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to generate TLS config: %w", err)
	}

	listener, err := quic.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	util.LogInfo("waiting for QUIC peer on %s", addr)
	conn, err := listener.Accept(ctx)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to accept QUIC peer: %w", err)
	}
	util.LogInfo("QUIC peer connected from %s", conn.RemoteAddr())

	return newQUIC(conn, listener), nil
}

// DialQUIC connects to the base station at addr.
func DialQUIC(ctx context.Context, addr string) (*QUIC, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true, // the base uses a throwaway self-signed cert
		NextProtos:         []string{quicALPN},
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	util.LogInfo("QUIC connected to %s", addr)

	return newQUIC(conn, nil), nil
}

func newQUIC(conn *quic.Conn, listener *quic.Listener) *QUIC {
	ctx, cancel := context.WithCancel(context.Background())
	t := &QUIC{
		conn:     conn,
		listener: listener,
		ctx:      ctx,
		cancel:   cancel,
	}
	t.inbox = newInbox(inboxSize, ctx.Done())
	go t.readLoop()
	return t
}

func (t *QUIC) readLoop() {
	defer t.Close()

	for {
		data, err := t.conn.ReceiveDatagram(t.ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				util.LogWarning("QUIC receive failed: %v", err)
			}
			return
		}
		if len(data) == 0 || len(data) > protocol.MaxFrameSize {
			continue
		}
		if !t.inbox.push(data) {
			return
		}
	}
}

// Send writes frame as one datagram.
func (t *QUIC) Send(frame []byte) error {
	if len(frame) > protocol.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	if t.ctx.Err() != nil {
		return ErrClosed
	}
	return t.conn.SendDatagram(frame)
}

// Receive returns the next inbound frame.
func (t *QUIC) Receive(ctx context.Context) ([]byte, error) {
	return t.inbox.receive(ctx)
}

// Close tears down the connection and, on the base, the listener.
func (t *QUIC) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.CloseWithError(0, "closed")
		if t.listener != nil {
			err = errors.Join(err, t.listener.Close())
		}
	})
	return err
}

// generateTLSConfig creates a self-signed certificate for the QUIC listener.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{quicALPN},
	}, nil
}
