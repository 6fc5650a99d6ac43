//go:build property

package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var constructors = []func(cause error) *ManagerError{
	func(c error) *ManagerError { return NewSpawnError("xelatex", c) },
	func(c error) *ManagerError { return NewFatalSpawnError("xelatex", c) },
	func(c error) *ManagerError { return NewHookError("post-build", c) },
	func(c error) *ManagerError { return NewMissingStreamsError("xelatex", c) },
	func(c error) *ManagerError { return NewTerminateError(42, c) },
	func(c error) *ManagerError { return NewDownloadError("http://x", c) },
	func(c error) *ManagerError { return NewScaffoldError("features", c) },
}

func TestManagerErrorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("wrapping keeps the cause reachable", prop.ForAll(
		func(idx int, msg string, depth int) bool {
			cause := errors.New(msg)
			var err error = constructors[idx](cause)
			for i := 0; i < depth; i++ {
				err = fmt.Errorf("layer %d: %w", i, err)
			}
			return errors.Is(err, cause)
		},
		gen.IntRange(0, len(constructors)-1),
		gen.AlphaString(),
		gen.IntRange(0, 5),
	))

	properties.Property("classification survives Join and Wrap", prop.ForAll(
		func(idx int, others int) bool {
			me := constructors[idx](errors.New("cause"))
			errs := []error{me}
			for i := 0; i < others; i++ {
				errs = append(errs, fmt.Errorf("other %d", i))
			}
			joined := Join(errs...)
			wrapped := fmt.Errorf("outer: %w", joined)

			return IsFatal(wrapped) == (me.Code == ErrCodeSpawnFatal) &&
				IsSpawnError(wrapped) == (me.Code == ErrCodeSpawn) &&
				IsHookError(wrapped) == (me.Code == ErrCodeHook) &&
				IsMissingStreams(wrapped) == (me.Code == ErrCodeMissingStreams)
		},
		gen.IntRange(0, len(constructors)-1),
		gen.IntRange(0, 4),
	))

	properties.Property("RecoverHook never lets a panic escape", prop.ForAll(
		func(msg string, panics bool) bool {
			err := RecoverHook("hook", func() error {
				if panics {
					panic(msg)
				}
				return errors.New(msg)
			})
			return IsHookError(err)
		},
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.Property("Handle logs exactly once per error", prop.ForAll(
		func(idx int) bool {
			rec := &recordingLogger{}
			NewErrorHandler(rec).Handle(context.Background(), constructors[idx](nil))
			return rec.debug+rec.warn+rec.errs+rec.fatal == 1
		},
		gen.IntRange(0, len(constructors)-1),
	))

	properties.TestingRun(t)
}
