package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Handler executes a command and returns a message for the operator.
type Handler func(ctx context.Context, cmd Command) (string, error)

// Console reads commands line by line and runs them one at a time.
type Console struct {
	in     io.Reader
	out    io.Writer
	handle Handler
	log    *zap.Logger
}

// NewConsole creates a console.
func NewConsole(in io.Reader, out io.Writer, handle Handler, log *zap.Logger) *Console {
	return &Console{in: in, out: out, handle: handle, log: log}
}

// Run processes input until ctx is cancelled. End of input does not stop
// the machine; Run then just waits for ctx.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			c.log.Warn("console read failed", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				c.log.Debug("console input closed")
				<-ctx.Done()
				return nil
			}
			c.exec(ctx, line)
		}
	}
}

func (c *Console) exec(ctx context.Context, line string) {
	cmd, err := Parse(line)
	if errors.Is(err, ErrEmpty) {
		return
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if cmd.Kind == KindHelp {
		fmt.Fprintln(c.out, Help)
		return
	}

	msg, err := c.handle(ctx, cmd)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if msg != "" {
		fmt.Fprintln(c.out, msg)
	}
}
