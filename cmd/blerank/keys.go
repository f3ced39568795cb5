package main

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/srg/blerank/internal/groutine"
	"golang.org/x/term"
)

// keyAction is what a key press asks the watch screen to do.
type keyAction int

const (
	keyNone keyAction = iota
	keyDown
	keyUp
	keyPageDown
	keyPageUp
	keyTop
	keyReset
	keyQuit
)

// actionForKey maps a raw input byte to a watch screen action.
func actionForKey(b byte) keyAction {
	switch b {
	case 'j':
		return keyDown
	case 'k':
		return keyUp
	case ' ', 'f':
		return keyPageDown
	case 'b':
		return keyPageUp
	case 'g':
		return keyTop
	case 'r':
		return keyReset
	case 'q', 3: // 3 is Ctrl+C in raw mode
		return keyQuit
	default:
		return keyNone
	}
}

// startKeyReader puts in into raw mode and streams key actions until ctx is
// done. When in is not a terminal it returns a nil channel and a no-op
// restore, leaving Ctrl+C to the signal handler.
func startKeyReader(ctx context.Context, in *os.File) (<-chan keyAction, func(), error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, func() {}, nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, err
	}
	restore := func() { _ = term.Restore(fd, oldState) }

	actions := make(chan keyAction, 8)
	groutine.Go(ctx, "key-reader", func(ctx context.Context) {
		buf := make([]byte, 16)
		for {
			n, err := in.Read(buf)
			if err != nil {
				return
			}
			for _, b := range buf[:n] {
				a := actionForKey(b)
				if a == keyNone {
					continue
				}
				select {
				case actions <- a:
				case <-ctx.Done():
					return
				}
			}
		}
	})
	return actions, restore, nil
}

// crlfWriter restores carriage returns that raw mode stops adding on output.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
