package resilience

import apperrors "github.com/satfetch/satfetch/lib/errors"

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = apperrors.ErrCircuitOpen
