package http

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/render"

	"insight/internal/core"
	"insight/internal/middleware/trace"
	"insight/internal/present"
)

var errBadFilter = errors.New("invalid filter")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// parseFilter reads the department and product query values. An empty or
// missing value leaves that field unconstrained. Values are compared as
// sent, so they are not trimmed, and any length is accepted: a value no
// record carries just matches nothing.
func parseFilter(r *http.Request) (core.FilterSpec, error) {
	q := r.URL.Query()
	spec := core.FilterSpec{
		Department: q.Get("department"),
		Product:    q.Get("product"),
	}
	for name, v := range map[string]string{"department": spec.Department, "product": spec.Product} {
		if err := checkFilterValue(v); err != nil {
			return core.FilterSpec{}, fmt.Errorf("%w: %s %v", errBadFilter, name, err)
		}
	}
	return spec, nil
}

func checkFilterValue(v string) error {
	if !utf8.ValidString(v) {
		return errors.New("is not valid UTF-8")
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return errors.New("contains control characters")
		}
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

// writeExport sends e as a download. The filename is encoded with
// mime.FormatMediaType so filter values outside ASCII survive.
func writeExport(w http.ResponseWriter, e present.Export) error {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": e.Filename})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", e.ContentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(e.Body)
	return err
}
