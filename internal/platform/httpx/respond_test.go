package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProblemCarriesRFC7807Shape(t *testing.T) {
	rr := httptest.NewRecorder()
	Problem(rr, http.StatusForbidden, "Forbidden", "not your tenant")

	if rr.Code != http.StatusForbidden {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{`"title":"Forbidden"`, `"status":403`, `"detail":"not your tenant"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %s: %s", want, body)
		}
	}
}

func TestStatusHelpers(t *testing.T) {
	rr := httptest.NewRecorder()
	NoContent(rr)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("NoContent wrote %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	Accepted(rr)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Accepted wrote %d", rr.Code)
	}
}

func TestDecodeJSONBoundsBody(t *testing.T) {
	huge := `{"path":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge))
	var target struct {
		Path string `json:"path"`
	}
	if err := DecodeJSON(req, &target); err == nil {
		t.Fatal("oversized body must not decode")
	}
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		if rr.Code != tc.want {
			t.Fatalf("error %v mapped to %d, want %d", tc.err, rr.Code, tc.want)
		}
	}
}
