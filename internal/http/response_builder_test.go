package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONResponseBuilder_Fields(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Field("success", true).
		Field("count", 2).
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := w.Body.String(); got != `{"count":2,"success":true}`+"\n" {
		t.Errorf("Body = %q", got)
	}
}

func TestJSONResponseBuilder_BodyAndHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/internal/debts/1").
		Body([]string{"a"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Header().Get("Location") != "/internal/debts/1" {
		t.Errorf("Location header not set")
	}
	if w.Body.String() != `["a"]`+"\n" {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilder_NoContent(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Field("ignored", 1).Write(w)

	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d with body %q", w.Code, w.Body.String())
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *JSONResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bad request",
			builder:    BadRequestError("Invalid input"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Invalid input"}` + "\n",
		},
		{
			name:       "unauthorized",
			builder:    UnauthorizedError(),
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"Unauthorized"}` + "\n",
		},
		{
			name:       "not found",
			builder:    NotFoundError("Debt not found"),
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"Debt not found"}` + "\n",
		},
		{
			name:       "internal server error",
			builder:    InternalServerError("Something broke"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Something broke"}` + "\n",
		},
		{
			name:       "too many requests",
			builder:    TooManyRequestsError(),
			wantStatus: http.StatusTooManyRequests,
			wantBody:   `{"error":"Rate limit exceeded"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}
