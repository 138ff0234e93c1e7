package modstate

import (
	"github.com/goliatone/go-modstate/internal/hydrate"
	"github.com/goliatone/go-modstate/layering"
)

// DecodeContext identifies the slice handed to decode hooks.
type DecodeContext = hydrate.Context

// DecodeOption configures a single DecodeStateWith call.
type DecodeOption[T any] hydrate.DecoderOption[T]

// DecodePreHook rewrites the payload before it is decoded. The payload is a
// private copy of the stored slice; a nil return keeps the current payload.
func DecodePreHook[T any](hook func(DecodeContext, any) (any, error)) DecodeOption[T] {
	return DecodeOption[T](hydrate.WithPreHook[T](hook))
}

// DecodePostHook adjusts or validates the decoded value.
func DecodePostHook[T any](hook func(DecodeContext, *T) error) DecodeOption[T] {
	return DecodeOption[T](hydrate.WithPostHook[T](hook))
}

// DecodeWithCustom replaces JSON decoding with fn.
func DecodeWithCustom[T any](fn func(DecodeContext, any) (T, error)) DecodeOption[T] {
	return DecodeOption[T](hydrate.WithCustomDecoder[T](fn))
}

// DecodeUseNumber keeps numbers as json.Number inside interface values.
func DecodeUseNumber[T any]() DecodeOption[T] {
	return DecodeOption[T](hydrate.WithUseNumber[T]())
}

// DecodeStrict rejects slice keys that have no matching field in T.
func DecodeStrict[T any]() DecodeOption[T] {
	return DecodeOption[T](hydrate.WithDisallowUnknownFields[T]())
}

// DecodeWithDefaults layers the decoded value over defaults after the other
// post hooks ran.
func DecodeWithDefaults[T any](defaults T) DecodeOption[T] {
	return DecodeOption[T](hydrate.WithPostHook[T](func(_ hydrate.Context, value *T) error {
		*value = layering.MergeLayers(*value, defaults)
		return nil
	}))
}

// DecodeState decodes the instance's slice, or the value at subPath below it,
// into T. An absent value decodes to the zero T.
func DecodeState[T any](inst *Instance, subPath ...string) (T, error) {
	return DecodeStateWith[T](inst, Path(subPath))
}

// DecodeStateWith decodes the value at path below the instance's slice,
// applying opts in order.
func DecodeStateWith[T any](inst *Instance, path Path, opts ...DecodeOption[T]) (T, error) {
	var zero T
	if inst == nil {
		return zero, ErrModuleRequired
	}
	value, err := inst.GetState(path...)
	if err != nil {
		return zero, err
	}
	decoderOpts := make([]hydrate.DecoderOption[T], 0, len(opts)+1)
	decoderOpts = append(decoderOpts, hydrate.WithAllowNil[T]())
	for _, opt := range opts {
		if opt != nil {
			decoderOpts = append(decoderOpts, hydrate.DecoderOption[T](opt))
		}
	}
	decoder := hydrate.NewDecoder[T](decoderOpts...)
	ctx := hydrate.Context{
		Namespace: string(inst.Namespace()),
		Path:      path.String(),
	}
	out, err := decoder.Decode(ctx, value)
	if err != nil {
		return zero, moduleError("decode state", inst.module.Key, inst.namespace, err)
	}
	return out, nil
}

// DecodeStateWithDefaults decodes like DecodeState and then layers the result
// over defaults: nil pointers, maps, slices and interfaces in the decoded value
// fall back to the matching field of defaults.
func DecodeStateWithDefaults[T any](inst *Instance, defaults T, subPath ...string) (T, error) {
	return DecodeStateWith[T](inst, Path(subPath), DecodeWithDefaults(defaults))
}
