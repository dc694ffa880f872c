package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/ajayykmr/bulkmailer-go/internal/config"
	"github.com/ajayykmr/bulkmailer-go/internal/message"
)

// SMTPOption configures the SMTP session at dial time.
type SMTPOption func(*smtpSettings)

type smtpSettings struct {
	tlsConfig   *tls.Config
	dial        func(addr string) (net.Conn, error)
	helloName   string
	dialTimeout time.Duration
}

// WithTLSConfig overrides the TLS configuration used for the STARTTLS
// upgrade.
func WithTLSConfig(cfg *tls.Config) SMTPOption {
	return func(s *smtpSettings) {
		s.tlsConfig = cfg
	}
}

// WithConnDialer swaps the function used to establish the underlying network
// connection, which lets tests supply an in-memory pipe.
func WithConnDialer(dial func(addr string) (net.Conn, error)) SMTPOption {
	return func(s *smtpSettings) {
		if dial != nil {
			s.dial = dial
		}
	}
}

// WithHelloName customises the EHLO identity presented to the relay.
func WithHelloName(name string) SMTPOption {
	return func(s *smtpSettings) {
		if strings.TrimSpace(name) != "" {
			s.helloName = strings.TrimSpace(name)
		}
	}
}

// SMTPSession is a Session backed by one authenticated SMTP connection. It
// must not be used concurrently; the dispatch engine issues one Send at a
// time.
type SMTPSession struct {
	logger zerolog.Logger
	client *smtp.Client

	closeOnce sync.Once
	closeErr  error
}

// DialSMTP establishes the campaign's relay connection: plaintext dial, EHLO,
// STARTTLS upgrade when configured, then authentication. Any failure tears
// down the partial connection and wraps ErrSetup.
func DialSMTP(cfg config.TransportConfig, logger zerolog.Logger, opts ...SMTPOption) (*SMTPSession, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("%w: host is required", ErrSetup)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port %d", ErrSetup, cfg.Port)
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "smtp_session").Logger()

	settings := &smtpSettings{
		helloName:   "localhost",
		dialTimeout: 30 * time.Second,
		tlsConfig: &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}
	if settings.dial == nil {
		dialer := &net.Dialer{Timeout: settings.dialTimeout}
		settings.dial = func(addr string) (net.Conn, error) {
			return dialer.Dial("tcp", addr)
		}
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := settings.dial(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrSetup, addr, err)
	}

	client := smtp.NewClient(conn)

	if err := client.Hello(settings.helloName); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: hello: %v", ErrSetup, err)
	}

	if cfg.UseStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("%w: relay does not support STARTTLS", ErrSetup)
		}
		tlsCfg := settings.tlsConfig
		if tlsCfg != nil && tlsCfg.ServerName == "" {
			tlsCfg = tlsCfg.Clone()
			tlsCfg.ServerName = cfg.Host
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: starttls: %v", ErrSetup, err)
		}
	}

	if strings.TrimSpace(cfg.Username) != "" {
		auth := sasl.NewPlainClient("", cfg.Username, cfg.Password)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: auth: %v", ErrSetup, err)
		}
	}

	logger.Info().
		Str("relay", addr).
		Bool("starttls", cfg.UseStartTLS).
		Msg("smtp session established")

	return &SMTPSession{logger: logger, client: client}, nil
}

// Send performs one MAIL/RCPT/DATA transaction for the supplied message. On
// failure the transaction is reset so the session stays usable for the next
// attempt.
func (s *SMTPSession) Send(ctx context.Context, msg *message.Outbound) error {
	if msg == nil {
		return errors.New("transport: message is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.transact(msg); err != nil {
		_ = s.client.Reset()
		return err
	}

	s.logger.Debug().
		Str("recipient", msg.To.String()).
		Str("message_id", msg.MessageID).
		Msg("message accepted by relay")
	return nil
}

func (s *SMTPSession) transact(msg *message.Outbound) error {
	if err := s.client.Mail(msg.From, nil); err != nil {
		return fmt.Errorf("transport: mail from: %w", err)
	}
	if err := s.client.Rcpt(msg.To.String(), nil); err != nil {
		return fmt.Errorf("transport: rcpt to %s: %w", msg.To, err)
	}

	writer, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("transport: data: %w", err)
	}
	if _, err := writer.Write(msg.Raw); err != nil {
		_ = writer.Close()
		return fmt.Errorf("transport: data write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("transport: data close: %w", err)
	}
	return nil
}

// Close quits the relay conversation and releases the connection. Repeated
// calls return the first result.
func (s *SMTPSession) Close() error {
	s.closeOnce.Do(func() {
		if err := s.client.Quit(); err != nil && !errors.Is(err, io.EOF) {
			s.closeErr = errors.Join(fmt.Errorf("transport: quit: %w", err), s.client.Close())
			return
		}
		s.logger.Debug().Msg("smtp session closed")
	})
	return s.closeErr
}
