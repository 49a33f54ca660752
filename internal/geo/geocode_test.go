package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNominatimReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" || r.URL.Query().Get("lat") != "-27.469800" || r.URL.Query().Get("lon") != "153.025100" {
			http.Error(w, "bad query "+r.URL.String(), http.StatusBadRequest)
			return
		}
		if r.Header.Get("User-Agent") != "ppv-test" {
			http.Error(w, "missing user agent", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":{"town":"Fortitude Valley","country":"Australia"}}`))
	}))
	defer srv.Close()

	g := NewNominatimGeocoder(srv.URL, "ppv-test", time.Second)
	place, err := g.Reverse(context.Background(), Point{Lat: -27.4698, Lng: 153.0251})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if place.City != "Fortitude Valley" || place.Country != "Australia" {
		t.Fatalf("place = %+v", place)
	}
}

func TestNominatimReverseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewNominatimGeocoder(srv.URL, "", time.Second)
	if _, err := g.Reverse(context.Background(), Point{Lat: 1, Lng: 1}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
