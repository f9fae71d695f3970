package influx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"BobbyCloud/internal/model"
)

func TestHTTPWriterSendsPayload(t *testing.T) {
	type request struct {
		method, auth, contentType, accept, body string
	}
	got := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- request{
			method:      r.Method,
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			accept:      r.Header.Get("Accept"),
			body:        string(b),
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewHTTPWriter(model.InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "secret"})
	payload := "system,host=car1 uptime=1,freememory8=2 3\n"
	if err := w.Write(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	req := <-got
	if req.method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.method)
	}
	if req.auth != "Token secret" {
		t.Errorf("Authorization = %q", req.auth)
	}
	if req.contentType != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", req.contentType)
	}
	if req.accept != "application/json" {
		t.Errorf("Accept = %q", req.accept)
	}
	if req.body != payload {
		t.Errorf("body = %q, want %q", req.body, payload)
	}
}

func TestHTTPWriterReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized","message":"bad token"}`))
	}))
	defer srv.Close()

	err := NewHTTPWriter(model.InfluxConfig{URL: srv.URL}).Write(context.Background(), []byte("x"))
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("error = %v, want *WriteError", err)
	}
	if werr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", werr.StatusCode)
	}
	if werr.Body != `{"code":"unauthorized","message":"bad token"}` {
		t.Errorf("Body = %q", werr.Body)
	}
}

func TestHTTPWriterTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewHTTPWriter(model.InfluxConfig{URL: url, TimeoutMs: 500}).Write(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("Write to closed server succeeded")
	}
	var werr *WriteError
	if errors.As(err, &werr) {
		t.Errorf("transport failure reported as %v", werr)
	}
}
