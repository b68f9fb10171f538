// Package imap appends recovered messages to a folder on an IMAP server.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/edb-recover/export"
	"github.com/dhcgn/edb-recover/model"
)

// DefaultFolder is used when no target folder is configured.
const DefaultFolder = "Recovered"

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
}

// Exporter uploads messages with APPEND. The connection is opened on the first
// Export and kept until Close.
type Exporter struct {
	opts   Options
	logger *slog.Logger

	client  *imapclient.Client
	cleanup func()
}

func NewExporter(opts Options, logger *slog.Logger) (*Exporter, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{opts: opts, logger: logger}, nil
}

func (e *Exporter) Name() string {
	return "imap"
}

func (e *Exporter) Export(ctx context.Context, msg model.RecoveredMessage) error {
	raw, err := export.Render(msg)
	if err != nil {
		return err
	}

	if e.client == nil {
		e.client, e.cleanup, err = e.dial(ctx)
		if err != nil {
			return err
		}
	}

	if err := e.appendMessage(msg, raw); err != nil {
		return fmt.Errorf("upload message %s: %w", msg.ID, err)
	}
	e.logger.Debug("uploaded message", "id", msg.ID, "target", e.targetFolder())
	return nil
}

func (e *Exporter) Close() error {
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
		e.client = nil
	}
	return nil
}

func (e *Exporter) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(e.opts.Host, strconv.Itoa(e.opts.Port))
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)

	if e.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         e.opts.Host,
			InsecureSkipVerify: e.opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(e.opts.Username, e.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if err := e.ensureMailbox(client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	e.logger.Debug("imap connection established", "address", address, "user", e.opts.Username, "target", e.targetFolder(), "tls", e.opts.UseTLS)

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		aborted := !stopClose()
		if !aborted {
			if err := client.Logout().Wait(); err != nil {
				e.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil {
			e.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

func (e *Exporter) appendMessage(msg model.RecoveredMessage, raw []byte) error {
	var opts *imapv2.AppendOptions
	if !msg.Date.IsZero() {
		opts = &imapv2.AppendOptions{Time: msg.Date}
	}

	cmd := e.client.Append(e.targetFolder(), int64(len(raw)), opts)

	remaining := raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}

	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}

	return nil
}

func (e *Exporter) targetFolder() string {
	if e.opts.TargetFolder == "" {
		return DefaultFolder
	}
	return e.opts.TargetFolder
}

func (e *Exporter) ensureMailbox(client *imapclient.Client) error {
	target := e.targetFolder()
	if err := client.Create(target, nil).Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			e.logger.Debug("imap mailbox already exists", "mailbox", target)
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", target, err)
	}

	e.logger.Info("imap mailbox created", "mailbox", target)
	return nil
}
