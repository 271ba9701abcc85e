package apierr

import (
	"net/http"
	"testing"
)

func TestStatusCodeMapsTaxonomy(t *testing.T) {
	cases := map[Kind]int{
		Validation:   http.StatusUnprocessableEntity,
		NotFound:     http.StatusNotFound,
		Conflict:     http.StatusConflict,
		FileNotFound: http.StatusNotFound,
		ArchiveLimit: http.StatusBadRequest,
		Analyzer:     http.StatusInternalServerError,
		Timeout:      http.StatusRequestTimeout,
		Bus:          http.StatusServiceUnavailable,
		Lock:         http.StatusServiceUnavailable,
		Repository:   http.StatusServiceUnavailable,
	}
	for kind, want := range cases {
		if got := StatusCode(kind); got != want {
			t.Errorf("StatusCode(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestErrorImplementsErrorInterface(t *testing.T) {
	var err error = New(Validation, "bad request")
	if err.Error() != "bad request" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
