package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dhcgn/edb-recover/model"
)

// EMLWriter writes one .eml file per message, in a subdirectory per folder.
type EMLWriter struct {
	dir    string
	logger *slog.Logger
}

// NewEMLWriter creates dir if needed.
func NewEMLWriter(dir string, logger *slog.Logger) (*EMLWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("eml output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create eml directory: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EMLWriter{dir: dir, logger: logger}, nil
}

func (w *EMLWriter) Name() string {
	return "eml"
}

// Export writes msg under <dir>/<folder>/<name>.eml. Existing files are never
// overwritten; a numeric suffix is added instead.
func (w *EMLWriter) Export(ctx context.Context, msg model.RecoveredMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := Render(msg)
	if err != nil {
		return err
	}

	dir := filepath.Join(append([]string{w.dir}, SanitizePath(msg.Folder)...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create folder directory: %w", err)
	}

	base := FileName(msg)
	path := filepath.Join(dir, base+".eml")
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			path = filepath.Join(dir, fmt.Sprintf("%s_%d.eml", base, i))
			continue
		}
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if _, err := f.Write(raw); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", path, err)
		}
		w.logger.Debug("exported eml", "path", path, "id", msg.ID)
		return nil
	}
}

func (w *EMLWriter) Close() error {
	return nil
}
