package http

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"insight/internal/core"
	"insight/internal/dataset"
	"insight/internal/log"
	"insight/internal/present"
)

// PageTitle is the dashboard page title.
const PageTitle = "Insight | Business Analytics"

// PageSize is the number of table rows per page.
const PageSize = 20

type optionsResponse struct {
	Departments []string `json:"departments"`
	Products    []string `json:"products"`
}

type viewResponse struct {
	Filter  core.FilterSpec `json:"filter"`
	Table   []present.Row   `json:"table"`
	Chart   present.Chart   `json:"chart"`
	Dataset dataset.Meta    `json:"dataset"`
}

type dashboardPage struct {
	Title       string
	Prefix      string
	Columns     []string
	Departments []string
	Products    []string
	Filter      core.FilterSpec
	Rows        []present.Row
	Total       int
	PageSize    int
	Dataset     dataset.Meta
}

// snapshot loads the current snapshot once for the request. Without one
// the dashboard answers 503 and renders nothing partial.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*dataset.Snapshot, bool) {
	snap, err := s.store.Snapshot()
	if err != nil {
		if !errors.Is(err, dataset.ErrNoSnapshot) {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Snapshot unavailable", log.FieldError, err)
		}
		s.writeError(w, r, http.StatusServiceUnavailable, "dataset not loaded")
		return nil, false
	}
	return snap, true
}

// view parses the filter and renders it against the current snapshot.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (present.View, *dataset.Snapshot, bool) {
	spec, err := parseFilter(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return present.View{}, nil, false
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return present.View{}, nil, false
	}
	return present.Render(spec, snap), snap, true
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	v, snap, ok := s.view(w, r)
	if !ok {
		return
	}
	departments, products := snap.Options()

	rows := v.Table
	if len(rows) > PageSize {
		rows = rows[:PageSize]
	}
	page := dashboardPage{
		Title:       PageTitle,
		Prefix:      s.prefix,
		Columns:     core.Columns(),
		Departments: departments,
		Products:    products,
		Filter:      v.Filter,
		Rows:        rows,
		Total:       len(v.Table),
		PageSize:    PageSize,
		Dataset:     snap.Meta(),
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "dashboard.html", page); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).
			ErrorContext(r.Context(), "Template render failed", log.FieldError, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	departments, products := snap.Options()
	render.JSON(w, r, optionsResponse{Departments: departments, Products: products})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v, snap, ok := s.view(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, viewResponse{
		Filter:  v.Filter,
		Table:   v.Table,
		Chart:   v.Chart,
		Dataset: snap.Meta(),
	})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	v, _, ok := s.view(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, v.Table)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	v, _, ok := s.view(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, v.Chart)
}
