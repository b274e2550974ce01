package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tempchat/internal/pkg/errs"
)

type sample struct {
	Name string `json:"name"`
}

func newJSONRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestBindJSON(t *testing.T) {
	var dst sample
	assert.Nil(t, BindJSON(newJSONRequest(`{"name":"ada"}`), &dst))
	assert.Equal(t, "ada", dst.Name)
}

func TestBindJSON_EmptyBody(t *testing.T) {
	var dst sample
	assert.Nil(t, BindJSON(newJSONRequest(``), &dst))
	assert.Empty(t, dst.Name)
}

func TestBindJSON_Rejections(t *testing.T) {
	var dst sample

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	assert.Equal(t, errs.ErrUnsupportedMediaType, BindJSON(r, &dst).Code)

	assert.Equal(t, errs.ErrInvalidJSONFormat, BindJSON(newJSONRequest(`{"nope":1}`), &dst).Code)
	assert.Equal(t, errs.ErrExtraContentInBody, BindJSON(newJSONRequest(`{"name":"a"}{"name":"b"}`), &dst).Code)
}
