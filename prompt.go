package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/treesync/treesync/internal/sync"
	"github.com/treesync/treesync/internal/target"
)

// newPromptDecider returns a DecideFunc that asks the user on the
// terminal, or ok=false when stdin is not a terminal. Uppercase answers
// stick for the remainder of the run.
func newPromptDecider() (sync.DecideFunc, bool) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return nil, false
	}

	reader := bufio.NewReader(os.Stdin)

	var sticky *sync.Winner

	return func(ctx context.Context, c sync.Conflict) (sync.Winner, error) {
		if sticky != nil {
			return *sticky, nil
		}

		fmt.Fprintf(os.Stderr, "\nconflict: %s\n", c.Path)
		fmt.Fprintf(os.Stderr, "  local:  %s\n", describeSide(c.Local, c.LocalChange))
		fmt.Fprintf(os.Stderr, "  remote: %s\n", describeSide(c.Remote, c.RemoteChange))

		for {
			if err := ctx.Err(); err != nil {
				return sync.WinnerSkip, err
			}

			fmt.Fprint(os.Stderr, "use [l]ocal, [r]emote, or [s]kip (uppercase = apply to all)? ")

			line, err := reader.ReadString('\n')
			if err != nil {
				return sync.WinnerSkip, fmt.Errorf("reading answer: %w", err)
			}

			answer := strings.TrimSpace(line)

			winner, all, ok := parseAnswer(answer)
			if !ok {
				continue
			}

			if all {
				sticky = &winner
			}

			return winner, nil
		}
	}, true
}

// parseAnswer maps one prompt answer to a winner; all marks the sticky
// uppercase variants.
func parseAnswer(s string) (winner sync.Winner, all, ok bool) {
	switch s {
	case "l":
		return sync.WinnerLocal, false, true
	case "L":
		return sync.WinnerLocal, true, true
	case "r":
		return sync.WinnerRemote, false, true
	case "R":
		return sync.WinnerRemote, true, true
	case "s":
		return sync.WinnerSkip, false, true
	case "S":
		return sync.WinnerSkip, true, true
	default:
		return sync.WinnerSkip, false, false
	}
}

// describeSide renders one side of a conflict for the prompt.
func describeSide(e *target.Entry, change sync.ChangeCategory) string {
	if e == nil {
		return change.String()
	}

	return fmt.Sprintf("%s, %s, %s (%s)",
		change, humanize.Bytes(uint64(max(e.Size, 0))),
		e.ModTime.Format("2006-01-02 15:04:05"), humanize.Time(e.ModTime))
}

// promptPassword reads a password without echo from the terminal.
// Returns empty when stdin is not a terminal.
func promptPassword(user, host string) string {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return ""
	}

	fmt.Fprintf(os.Stderr, "password for %s@%s: ", user, host)

	pw, err := term.ReadPassword(int(os.Stdin.Fd()))

	fmt.Fprintln(os.Stderr)

	if err != nil {
		return ""
	}

	return string(pw)
}
