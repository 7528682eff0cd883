package cost

import "github.com/rotisserie/eris"

// ErrUnknownModel is returned for a model without a training price.
var ErrUnknownModel = eris.New("cost: unknown model")

func errUnknownModel(model string) error {
	return eris.Wrapf(ErrUnknownModel, "model %q", model)
}
