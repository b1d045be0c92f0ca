/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes JSON bodies strictly (unknown fields and trailing content are rejected) and
maps every failure to the matching business error code.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"accompany/internal/pkg/errs"
)

// MaxJSONBodySize limits JSON request bodies to 1 MB.
const MaxJSONBodySize int64 = 1 << 20

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
