package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondError(t *testing.T) {
	cases := []struct {
		err  error
		code int
		body string
	}{
		{fmt.Errorf("%w: end_date is required", ErrValidation), http.StatusBadRequest, "validation failed: end_date is required"},
		{fmt.Errorf("upload job: %w", ErrNotFound), http.StatusNotFound, "upload job: resource not found"},
		{ErrTooLarge, http.StatusRequestEntityTooLarge, "payload too large"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		if rec.Code != tc.code {
			t.Fatalf("status for %v = %d, want %d", tc.err, rec.Code, tc.code)
		}
		var body ErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Error != tc.body {
			t.Fatalf("body for %v = %q, want %q", tc.err, body.Error, tc.body)
		}
	}
}
