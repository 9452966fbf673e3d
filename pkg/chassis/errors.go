package chassis

import "github.com/juju/errors"

// Error kinds beyond the ones juju/errors already provides. Invalid configs
// satisfy errors.NotValid and unregistered ports errors.NotFound.
const (
	// ErrUnavailable is returned before the first successful config push and
	// when a device driver or the PHAL cannot be reached.
	ErrUnavailable = errors.ConstError("unavailable")
	// ErrInternal is returned when a device driver rejects a callback
	// registration or unregistration.
	ErrInternal = errors.ConstError("internal error")
)

func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }

func unavailablef(format string, args ...any) error {
	return errors.WithType(errors.Errorf(format, args...), ErrUnavailable)
}
