package apperr

import (
	"github.com/pkg/errors"

	"github.com/refpoll/backend/pkg/database"
)

// FromStore classifies an error returned by a storage call. Already
// classified errors pass through; timeouts and connectivity failures become
// KindTransient; anything else is wrapped with op and stays internal.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	if database.IsTransient(err) {
		return Transient("storage unavailable", errors.Wrap(err, op))
	}
	return errors.Wrap(err, op)
}
