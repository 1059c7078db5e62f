// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"
	"reflect"

	"github.com/rs/zerolog"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	Logger zerolog.Logger

	// APIHandler serves the REST API, the websocket endpoint and /metrics.
	APIHandler http.Handler
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	// zerolog.Logger holds slices, so the zero value needs reflect.
	if reflect.ValueOf(d.Logger).IsZero() || d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
