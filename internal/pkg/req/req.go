/*
Package req provides helper functions for HTTP request parsing and data binding.

It encapsulates the logic for parsing JSON bodies and integrates error handling to
ensure data format correctness and size constraints, facilitating subsequent business
logic processing.
*/
package req

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"tempchat/internal/pkg/errs"
)

// MaxJSONBodySize caps REST request bodies; the REST surface only carries small profile payloads.
const MaxJSONBodySize int64 = 64 << 10 // 64 KB

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
// An empty body is accepted and leaves dst untouched.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
