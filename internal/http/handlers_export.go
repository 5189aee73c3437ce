package http

import (
	"net/http"

	"insight/internal/core"
	"insight/internal/log"
	"insight/internal/present"
)

const (
	formatCSV  = "csv"
	formatXLSX = "xlsx"
)

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, formatCSV, present.CSV)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, formatXLSX, present.XLSX)
}

// export renders the filtered records with build and sends the result as an
// attachment named after the filter.
func (s *Server) export(w http.ResponseWriter, r *http.Request, format string, build func([]core.Record, core.FilterSpec) (present.Export, error)) {
	v, _, ok := s.view(w, r)
	if !ok {
		return
	}

	e, err := build(v.Records, v.Filter)
	if err != nil {
		s.exports.LogError(r.Context(), "Export failed", err, log.OpExport,
			log.NewFields().WithFilter(v.Filter.Department, v.Filter.Product))
		s.writeError(w, r, http.StatusInternalServerError, "export failed")
		return
	}

	if err := writeExport(w, e); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Export write interrupted", log.FieldError, err)
		return
	}
	s.metrics.ObserveExport(format)
	s.exports.LogExport(r.Context(), format, v.Filter.Department, v.Filter.Product, len(v.Records))
}
