package sync

import (
	"context"
	"errors"
	"log/slog"
)

// ErrResolutionDeclined marks an interactive conflict with no usable
// answer. The entry stays unsynced and is re-evaluated next run.
var ErrResolutionDeclined = errors.New("sync: conflict resolution declined")

// Resolver applies the configured strategy to a conflict, or defers to the
// decision callback under the interactive strategy. It blocks only the
// conflicting entry; siblings proceed independently.
type Resolver struct {
	strategy Strategy
	decide   DecideFunc
	logger   *slog.Logger
}

// NewResolver builds a resolver. A nil decide callback with the
// interactive strategy degrades each conflict to skip with a warning.
func NewResolver(strategy Strategy, decide DecideFunc, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{strategy: strategy, decide: decide, logger: logger}
}

// Resolve picks the winning side for a conflict. WinnerSkip leaves the
// entry untouched and baseline unchanged. The returned error is
// ErrResolutionDeclined when an interactive answer was refused.
func (r *Resolver) Resolve(ctx context.Context, c Conflict) (Winner, error) {
	switch r.strategy {
	case StrategyLocalWins:
		return WinnerLocal, nil

	case StrategyRemoteWins:
		return WinnerRemote, nil

	case StrategyNewerWins:
		return r.newerWins(c), nil

	case StrategyLargerWins:
		return r.largerWins(c), nil

	case StrategyInteractive:
		return r.interactive(ctx, c)

	default:
		return WinnerSkip, nil
	}
}

// newerWins compares modification times; ties resolve to local. A side
// that deleted the entry has no time to compare, so the surviving side
// wins — deletion never outranks an edit under this strategy.
func (r *Resolver) newerWins(c Conflict) Winner {
	switch {
	case c.Local == nil:
		return WinnerRemote
	case c.Remote == nil:
		return WinnerLocal
	}

	if c.Remote.ModTime.After(c.Local.ModTime) {
		return WinnerRemote
	}

	return WinnerLocal
}

// largerWins compares sizes; ties fall through to newerWins. As with
// newerWins, a deleted side loses to the surviving one.
func (r *Resolver) largerWins(c Conflict) Winner {
	switch {
	case c.Local == nil:
		return WinnerRemote
	case c.Remote == nil:
		return WinnerLocal
	}

	switch {
	case c.Local.Size > c.Remote.Size:
		return WinnerLocal
	case c.Remote.Size > c.Local.Size:
		return WinnerRemote
	default:
		return r.newerWins(c)
	}
}

func (r *Resolver) interactive(ctx context.Context, c Conflict) (Winner, error) {
	if r.decide == nil {
		r.logger.Warn("interactive strategy without a decision callback, skipping conflict",
			slog.String("path", c.Path),
		)

		return WinnerSkip, ErrResolutionDeclined
	}

	winner, err := r.decide(ctx, c)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return WinnerSkip, err
		}

		return WinnerSkip, errors.Join(ErrResolutionDeclined, err)
	}

	return winner, nil
}
