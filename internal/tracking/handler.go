package tracking

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/httputil"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	trackingsvc "github.com/ignite/bulkmail/internal/service/tracking"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21,
	0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x01, 0x44,
	0x00, 0x3b,
}

// Handler serves the public, unauthenticated tracking endpoints. Opens and
// clicks go through the Recorder after the response is written; unsubscribes
// are applied to the ledger before the confirmation page is rendered.
type Handler struct {
	ledger   Ledger
	recorder Recorder
	pages    *pageRenderer
	now      func() time.Time
}

func NewHandler(ledger Ledger, recorder Recorder) (*Handler, error) {
	pages, err := newPageRenderer()
	if err != nil {
		return nil, err
	}
	return &Handler{ledger: ledger, recorder: recorder, pages: pages, now: time.Now}, nil
}

// RegisterRoutes mounts the tracking endpoints on an /api router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/track/open/{token}", h.HandleOpen)
	r.Get("/track/click/{token}", h.HandleClick)
	r.Get("/track/unsubscribe/{token}", h.HandleUnsubscribe)
	r.Post("/track/unsubscribe/{token}", h.HandleUnsubscribe)
}

// Routes returns a standalone router for the tracking binary.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	r.Get("/health", HandleHealth)
	return r
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	servePixel(w)

	lead := r.URL.Query().Get("lead")
	if lead == "" {
		return
	}
	h.recorder.Record(Event{
		Type:        domain.EventOpen,
		Token:       chi.URLParam(r, "token"),
		RecipientID: lead,
		IPAddress:   realIP(r),
		UserAgent:   r.UserAgent(),
		Timestamp:   h.now().UTC(),
	})
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dest := q.Get("url")
	if dest == "" {
		http.Error(w, "Destination URL is required", http.StatusBadRequest)
		return
	}
	if !redirectable(dest) {
		http.Error(w, "Invalid destination URL", http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, dest, http.StatusFound)

	lead := q.Get("lead")
	if lead == "" {
		return
	}
	h.recorder.Record(Event{
		Type:        domain.EventClick,
		Token:       chi.URLParam(r, "token"),
		RecipientID: lead,
		URL:         dest,
		IPAddress:   realIP(r),
		UserAgent:   r.UserAgent(),
		Timestamp:   h.now().UTC(),
	})
}

func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	lead := r.URL.Query().Get("lead")
	if lead == "" && r.Method == http.MethodPost {
		lead = r.PostFormValue("lead")
	}
	if lead == "" {
		h.writePage(w, http.StatusBadRequest, pageMissingLead)
		return
	}

	_, err := h.ledger.RecordUnsubscribe(r.Context(), token, lead)
	switch {
	case err == nil:
	case errors.Is(err, trackingsvc.ErrRecordNotFound):
		// unknown pairs still get the confirmation page
		logger.Info("unsubscribe for unknown record", "token", token, "recipient_id", lead)
	default:
		logger.Error("unsubscribe failed", "token", token, "recipient_id", lead, "error", err.Error())
		h.writePage(w, http.StatusInternalServerError, pageFailed)
		return
	}
	h.writePage(w, http.StatusOK, pageUnsubscribed)
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) writePage(w http.ResponseWriter, status int, p page) {
	body, err := h.pages.render(p)
	if err != nil {
		log.Printf("[tracking.Handler] render page: %v", err)
		http.Error(w, p.message, status)
		return
	}
	httputil.HTML(w, status, string(body))
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// redirectable accepts absolute http(s) URLs only.
func redirectable(dest string) bool {
	u, err := url.Parse(dest)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
