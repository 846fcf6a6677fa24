package mockplatform

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const (
	RouteCreateToken      = "tokens.create"
	RouteRetrieveSource   = "sources.retrieve"
	RouteRetrieveCustomer = "customers.retrieve"
	RouteUpdateCustomer   = "customers.update"
	RouteAttachSource     = "customers.sources.attach"
	RouteDetachSource     = "customers.sources.detach"
	RouteCreateEphemeral  = "ephemeral_keys.create"
)

func (p *Platform) newRouter() *mux.Router {
	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		writeError(w, http.StatusNotFound, apiError{
			Type:    typeInvalidRequest,
			Message: "Unrecognized request URL (" + r.Method + ": " + r.URL.Path + ")",
		})
	})

	v1 := root.PathPrefix("/v1").Subrouter()
	v1.Use(p.countRequests, p.requestID, p.rateLimit)

	v1.HandleFunc("/tokens", p.createToken).Methods(http.MethodPost).Name(RouteCreateToken)
	v1.HandleFunc("/sources/{id}", p.retrieveSource).Methods(http.MethodGet).Name(RouteRetrieveSource)
	v1.HandleFunc("/customers/{id}", p.retrieveCustomer).Methods(http.MethodGet).Name(RouteRetrieveCustomer)
	v1.HandleFunc("/customers/{id}", p.updateCustomer).Methods(http.MethodPost).Name(RouteUpdateCustomer)
	v1.HandleFunc("/customers/{id}/sources", p.attachSource).Methods(http.MethodPost).Name(RouteAttachSource)
	v1.HandleFunc("/customers/{id}/sources/{source}", p.detachSource).Methods(http.MethodDelete).Name(RouteDetachSource)
	v1.HandleFunc("/ephemeral_keys", p.createEphemeralKey).Methods(http.MethodPost).Name(RouteCreateEphemeral)

	return root
}

func (p *Platform) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		if route := mux.CurrentRoute(r); route != nil {
			p.countRoute(route.GetName())
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Platform) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newID("req")
		w.Header().Set("Request-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		p.logger.Debug("mock platform request",
			"method", r.Method, "path", r.URL.Path, "request_id", id, "duration", time.Since(start))
	})
}

// rateLimit throttles per bearer credential, answering 429 like the platform.
func (p *Platform) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.opts.RateLimit > 0 && !p.limiter(bearer(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, apiError{
				Type:    typeRateLimit,
				Message: "Too many requests hit the API too quickly.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

const (
	typeInvalidRequest = "invalid_request_error"
	typeCard           = "card_error"
	typeRateLimit      = "rate_limit_error"
	typeAuthentication = "authentication_error"
)

type apiError struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
	Message     string `json:"message"`
	Param       string `json:"param,omitempty"`
}

func writeError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, map[string]apiError{"error": e})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, apiError{Type: typeAuthentication, Message: message})
}

func missing(w http.ResponseWriter, param, message string) {
	writeError(w, http.StatusNotFound, apiError{
		Type:    typeInvalidRequest,
		Code:    "resource_missing",
		Param:   param,
		Message: message,
	})
}

func badRequest(w http.ResponseWriter, code, param, message string) {
	writeError(w, http.StatusBadRequest, apiError{
		Type:    typeInvalidRequest,
		Code:    code,
		Param:   param,
		Message: message,
	})
}
