package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/poyrazK/tourpass/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Options configures the optional parts of the HTTP surface.
type Options struct {
	AdminKey       string
	RateLimitRPS   float64
	RateLimitBurst int
}

// APIHandler serves the purchase webhook, token redemption and operator routes.
type APIHandler struct {
	svc     ports.AccessService
	logger  *slog.Logger
	opts    Options
	limiter *rateLimiter
}

// NewAPIHandler creates and returns a new APIHandler instance.
func NewAPIHandler(svc ports.AccessService, logger *slog.Logger, opts Options) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &APIHandler{svc: svc, logger: logger, opts: opts}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = newRateLimiter(opts.RateLimitRPS, burst)
	}
	return h
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	mux.Handle("POST /webhooks/purchase", h.limited("webhook", h.PurchaseWebhook))
	mux.Handle("GET "+domain.AccessPath, h.limited("access", h.Access))
	mux.Handle("POST "+domain.AccessPath, h.limited("access", h.Access))

	// Operator Routes
	mux.Handle("GET /admin/tokens/{token}", AdminAuth(h.opts.AdminKey)(http.HandlerFunc(h.GetToken)))
}

// Handler returns the full middleware-wrapped router.
func (h *APIHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return RequestLogger(h.logger)(mux)
}

// CleanupLoop drops idle rate-limit buckets until done is closed.
func (h *APIHandler) CleanupLoop(done <-chan struct{}, every time.Duration) {
	if h.limiter == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.limiter.Cleanup()
		}
	}
}

func (h *APIHandler) limited(route string, fn http.HandlerFunc) http.Handler {
	if h.limiter == nil {
		return fn
	}
	return RateLimit(h.limiter, route)(fn)
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)
	checks := h.svc.HealthCheck(r.Context())

	for name, checkErr := range checks {
		if checkErr != nil {
			status = "DEGRADED"
			details[name] = checkErr.Error()
		} else {
			details[name] = "OK"
		}
	}

	resp := map[string]interface{}{
		"status":  status,
		"details": details,
	}

	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

// webhookPayload accepts the store provider's order event as well as a flat
// form used by internal tooling.
type webhookPayload struct {
	Data *struct {
		ID         any `json:"id"`
		Attributes struct {
			UserEmail      string `json:"user_email"`
			FirstOrderItem struct {
				ProductName string `json:"product_name"`
			} `json:"first_order_item"`
		} `json:"attributes"`
	} `json:"data"`

	OrderID     any    `json:"order_id"`
	ProductName string `json:"product_name"`
	Email       string `json:"email"`
}

func (p webhookPayload) purchase() domain.Purchase {
	var out domain.Purchase
	var id any
	if p.Data != nil {
		id = p.Data.ID
		out.ProductName = p.Data.Attributes.FirstOrderItem.ProductName
		out.Recipient = p.Data.Attributes.UserEmail
	} else {
		id = p.OrderID
		out.ProductName = p.ProductName
		out.Recipient = p.Email
	}
	if key := idString(id); key != "" {
		out.IdempotencyKey = &key
	}
	return out
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// PurchaseWebhook maps a paid order to a token and notifies the buyer.
func (h *APIHandler) PurchaseWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	out, err := h.svc.HandlePurchase(r.Context(), payload.purchase())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

type accessRequest struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// Access redeems a token and redirects the visitor to the tour content.
// GET reads ?token=, POST reads {"data":{"token":...}}.
func (h *APIHandler) Access(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if r.Method == http.MethodPost && token == "" {
		var req accessRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
			return
		}
		token = req.Data.Token
	}

	redirect, err := h.svc.Redeem(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, redirect.Location, http.StatusFound)
}

type tokenView struct {
	domain.TokenRecord
	RemainingUses int  `json:"remaining_uses"`
	Expired       bool `json:"expired"`
}

// GetToken reports a token's state without consuming a use.
func (h *APIHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Lookup(r.Context(), r.PathValue("token"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			http.Error(w, "Token not found", http.StatusNotFound)
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tokenView{
		TokenRecord:   *rec,
		RemainingUses: rec.RemainingUses(),
		Expired:       rec.Expired(time.Now()),
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrUsageLimitExceeded):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return err.Error()
	case errors.Is(err, domain.ErrInvalidToken):
		return "Invalid token"
	case errors.Is(err, domain.ErrExpired):
		return "Token expired"
	case errors.Is(err, domain.ErrUsageLimitExceeded):
		return "Usage limit exceeded"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "Service temporarily unavailable"
	default:
		return "Internal server error"
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
	}
	http.Error(w, publicMessage(err), code)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
