// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/ManuGH/booksync/internal/domain/booking/engine"
)

// bindPath binds a required simple-style path parameter into dest.
func bindPath(r *http.Request, name string, dest any) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidInput, err)
	}
	return nil
}

// bindQuery binds a form-style query parameter. Optional parameters take a
// pointer to a pointer and stay nil when absent.
func bindQuery(r *http.Request, name string, explode, required bool, dest any) error {
	if err := runtime.BindQueryParameter("form", explode, required, name, r.URL.Query(), dest); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidInput, err)
	}
	return nil
}
