package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ErrNoEditor is returned when the editor command is blank.
var ErrNoEditor = errors.New("no editor command configured")

// ExternalEditor hands content to an editor program through a temporary
// file and reads the result back once the program exits.
type ExternalEditor struct {
	command []string
	dir     string
	stdin   io.Reader
	stdout  io.Writer
	logger  *zap.Logger
}

// NewExternalEditor creates an editor running command, e.g. "vim" or
// "code --wait". Temporary files are created in dir, or the system temp
// directory when dir is empty.
func NewExternalEditor(command, dir string, logger *zap.Logger) (*ExternalEditor, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, ErrNoEditor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExternalEditor{
		command: fields,
		dir:     dir,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		logger:  logger.Named("editor"),
	}, nil
}

// Edit returns the edited content. A file that is missing after the editor
// exits yields an empty string.
func (e *ExternalEditor) Edit(ctx context.Context, content string) (string, error) {
	tmp, err := os.CreateTemp(e.dir, "respin_edit_*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create edit file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write edit file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write edit file: %w", err)
	}

	args := append(e.command[1:len(e.command):len(e.command)], path)
	cmd := exec.CommandContext(ctx, e.command[0], args...)
	cmd.Stdin = e.stdin
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stdout

	e.logger.Debug("opening editor", zap.Strings("command", e.command), zap.String("path", path))
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor %s failed: %w", e.command[0], err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("edit file missing after editor exited", zap.String("path", path))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read edit file: %w", err)
	}
	return string(data), nil
}
