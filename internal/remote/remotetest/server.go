// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

// Package remotetest provides an in-process fake of the Figure backend for
// tests.
package remotetest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Postcard/figure-raspbian-sub000/internal/models"
	"github.com/Postcard/figure-raspbian-sub000/internal/remote"
)

// Endpoint names accepted by SetStatus.
const (
	Installation = "installation"
	Tickets      = "tickets"
	Claim        = "claim"
	Device       = "device"
	Media        = "media"
)

// Ticket is an upload received by the fake.
type Ticket struct {
	Code       string
	Photobooth string
	Place      string
	Event      string
	Taken      string
	Picture    []byte
	Ticket     []byte
}

// Server is a fake backend. Zero statuses mean success.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	installation *models.Installation
	statuses     map[string]int
	media        map[string][]byte
	tickets      []Ticket
	reports      []models.DeviceReport
	nextCode     int
	malformed    bool

	calls map[string]*atomic.Int64
}

// NewServer starts a fake backend, closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		statuses: make(map[string]int),
		media:    make(map[string][]byte),
		calls:    make(map[string]*atomic.Int64),
	}
	for _, e := range []string{Installation, Tickets, Claim, Device, Media} {
		s.calls[e] = &atomic.Int64{}
	}

	r := chi.NewRouter()
	r.Get("/photobooths/{id}/installation", s.handleInstallation)
	r.Patch("/photobooths/{id}", s.handleDevice)
	r.Post("/tickets", s.handleTickets)
	r.Post("/codes/claim", s.handleClaim)
	r.Get("/media/*", s.handleMedia)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Client returns a remote client pointed at the fake with short timeouts
// and a breaker that never trips.
func (s *Server) Client() *remote.Client {
	return remote.NewClient(remote.Config{
		BaseURL:             s.URL,
		Token:               "test-token",
		PhotoboothID:        "pb-1",
		Timeout:             2 * time.Second,
		UploadTimeout:       2 * time.Second,
		BreakerMinRequests:  1 << 30,
		BreakerFailureRatio: 1,
	})
}

// SetInstallation sets the snapshot served by GET installation. Nil
// answers 404.
func (s *Server) SetInstallation(inst *models.Installation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installation = inst
}

// SetMalformed makes GET installation answer with an invalid payload.
func (s *Server) SetMalformed(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformed = on
}

// SetStatus forces an endpoint to answer status. Zero restores success.
func (s *Server) SetStatus(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[endpoint] = status
}

// AddMedia serves data and returns its URL.
func (s *Server) AddMedia(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media[name] = data
	return s.URL + "/media/" + name
}

// Calls returns how many requests reached endpoint.
func (s *Server) Calls(endpoint string) int64 {
	return s.calls[endpoint].Load()
}

// Tickets returns the uploads received so far.
func (s *Server) Tickets() []Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Ticket(nil), s.tickets...)
}

// Reports returns the device reports received so far.
func (s *Server) Reports() []models.DeviceReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DeviceReport(nil), s.reports...)
}

// forced writes the forced status of endpoint, if any, and reports
// whether it did.
func (s *Server) forced(w http.ResponseWriter, endpoint string) bool {
	s.calls[endpoint].Add(1)
	s.mu.Lock()
	status := s.statuses[endpoint]
	s.mu.Unlock()
	if status == 0 {
		return false
	}
	http.Error(w, http.StatusText(status), status)
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleInstallation(w http.ResponseWriter, r *http.Request) {
	if s.forced(w, Installation) {
		return
	}
	s.mu.Lock()
	inst, malformed := s.installation, s.malformed
	s.mu.Unlock()

	if malformed {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "", "place": {"id": 12`)
		return
	}
	if inst == nil || inst.PhotoboothID != chi.URLParam(r, "id") {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, inst)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if s.forced(w, Device) {
		return
	}
	var report models.DeviceReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.reports = append(s.reports, report)
	s.mu.Unlock()
	writeJSON(w, map[string]string{"id": chi.URLParam(r, "id")})
}

func (s *Server) handleTickets(w http.ResponseWriter, r *http.Request) {
	if s.forced(w, Tickets) {
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t := Ticket{
		Code:       r.FormValue("code"),
		Photobooth: r.FormValue("photobooth"),
		Place:      r.FormValue("place"),
		Event:      r.FormValue("event"),
		Taken:      r.FormValue("taken"),
	}
	for field, dst := range map[string]*[]byte{"picture": &t.Picture, "ticket": &t.Ticket} {
		f, _, err := r.FormFile(field)
		if err != nil {
			http.Error(w, fmt.Sprintf("missing %s", field), http.StatusBadRequest)
			return
		}
		*dst, _ = io.ReadAll(f)
		_ = f.Close()
	}
	s.mu.Lock()
	s.tickets = append(s.tickets, t)
	s.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"code": t.Code})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if s.forced(w, Claim) {
		return
	}
	var req models.ClaimCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Number <= 0 {
		http.Error(w, "bad number", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	codes := make([]string, req.Number)
	for i := range codes {
		codes[i] = fmt.Sprintf("C%07d", s.nextCode)
		s.nextCode++
	}
	s.mu.Unlock()
	writeJSON(w, models.ClaimCodesResponse{Codes: codes})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.forced(w, Media) {
		return
	}
	s.mu.Lock()
	data, ok := s.media[chi.URLParam(r, "*")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}
