// Package logs configures go-log for the process and keeps a tail of the
// output for the console view and the debug server.
package logs

import (
	"fmt"
	"io"
	"strings"

	logging "github.com/ipfs/go-log/v2"
)

var frontend = logging.Logger("volmix/frontend")

// Format maps a config name to a go-log output format. Unknown names fall
// back to plaintext.
func Format(name string) logging.LogFormat {
	switch strings.ToLower(name) {
	case "color", "colour":
		return logging.ColorizedOutput
	case "json":
		return logging.JSONOutput
	default:
		return logging.PlaintextOutput
	}
}

// Tee is the running copy of the log stream into a Buffer.
type Tee struct {
	Buffer *Buffer
	pipe   *logging.PipeReader
	done   chan struct{}
}

type Options struct {
	Level  string
	Format string
	Lines  int  // kept in the buffer
	Stderr bool // false when the terminal belongs to a TUI
}

// Setup configures every volmix logger and tees the log stream into a
// buffer.
func Setup(o Options) (*Tee, error) {
	lvl, err := logging.LevelFromString(o.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", o.Level, err)
	}
	logging.SetupLogging(logging.Config{
		Format: Format(o.Format),
		Level:  lvl,
		Stderr: o.Stderr,
	})

	t := &Tee{
		Buffer: NewBuffer(o.Lines),
		pipe:   logging.NewPipeReader(logging.PipeFormat(logging.PlaintextOutput), logging.PipeLevel(lvl)),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		_, _ = io.Copy(t.Buffer, t.pipe)
	}()
	return t, nil
}

// SetLevel changes the level of every volmix logger.
func SetLevel(level string) error {
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(lvl)
	return nil
}

// Close detaches the buffer from the log stream.
func (t *Tee) Close() error {
	err := t.pipe.Close()
	<-t.done
	return err
}

// Frontend writes a message forwarded from the UI at the named level.
func Frontend(message, level string) {
	switch strings.ToLower(level) {
	case "debug":
		frontend.Debug(message)
	case "warn", "warning":
		frontend.Warn(message)
	case "error":
		frontend.Error(message)
	default:
		frontend.Info(message)
	}
}
