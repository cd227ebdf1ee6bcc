package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prolearn/accounts/internal/domain"
	"github.com/prolearn/accounts/internal/repository"
	"github.com/prolearn/accounts/internal/service/admin"
	"github.com/prolearn/accounts/internal/service/auth"
	"github.com/prolearn/accounts/internal/service/credential"
	"github.com/prolearn/accounts/internal/service/otp"
	"github.com/prolearn/accounts/internal/token"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	credentials credential.Service
	auth        auth.Service
	otp         otp.Service
	admin       admin.Service
	limiter     RateLimiter
	dbHealth    func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitOTPSend   = 5
	rateLimitOTPVerify = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, credentialSvc credential.Service, authSvc auth.Service, otpSvc otp.Service, adminSvc admin.Service, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		credentials: credentialSvc,
		auth:        authSvc,
		otp:         otpSvc,
		admin:       adminSvc,
		limiter:     limiter,
		dbHealth:    dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.mux.HandleFunc("/signup", r.audit("signup", r.withRateLimit("signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/login", r.audit("login", r.withRateLimit("login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/otp/send", r.audit("otp_send", r.withRateLimit("otp_send", rateLimitOTPSend, rateWindowDefault, rateLimitKeyIP, r.handleOTPSend)))
	r.mux.HandleFunc("/otp/verify", r.audit("otp_verify", r.withRateLimit("otp_verify", rateLimitOTPVerify, rateWindowDefault, rateLimitKeyIP, r.handleOTPVerify)))
	r.mux.HandleFunc("/dashboard", r.audit("dashboard", r.handlerAuthRate("dashboard", rateLimitUserRead, rateWindowDefault, r.handleDashboard)))

	r.mux.HandleFunc("/admin-login", r.audit("admin_login", r.withRateLimit("admin_login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleAdminLogin)))
	r.mux.HandleFunc("/admin/logout", r.audit("admin_logout", r.handlerAuthRate("admin_logout", rateLimitUserWrite, rateWindowDefault, r.handleAdminLogout)))
	r.mux.HandleFunc("/admin/profile", r.audit("admin_profile", r.handlerAuthRate("admin_profile", rateLimitUserRead, rateWindowDefault, r.handleAdminProfile)))
	r.mux.HandleFunc("/admin/create-user", r.audit("admin_create_user", r.handlerAuthRate("admin_create_user", rateLimitUserWrite, rateWindowDefault, r.handleAdminCreateUser)))
	r.mux.HandleFunc("/admin/users", r.audit("admin_users", r.handlerAuthRate("admin_users", rateLimitUserRead, rateWindowDefault, r.handleAdminUsers)))
	r.mux.HandleFunc("/admin/delete-user/", r.audit("admin_delete_user", r.handlerAuthRate("admin_delete_user", rateLimitUserWrite, rateWindowDefault, r.handleAdminDeleteUser)))
	r.mux.HandleFunc("/admin/update-user/", r.audit("admin_update_user", r.handlerAuthRate("admin_update_user", rateLimitUserWrite, rateWindowDefault, r.handleAdminUpdateUser)))
	r.mux.HandleFunc("/admin/toggle-freeze/", r.audit("admin_toggle_freeze", r.handlerAuthRate("admin_toggle_freeze", rateLimitUserWrite, rateWindowDefault, r.handleAdminToggleFreeze)))
}

func userPayload(u *domain.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"email":     u.Email,
		"full_name": u.FullName,
		"role":      u.Role,
		"is_active": u.IsActive,
	}
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email" validate:"required,email"`
		FullName string `json:"full_name" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeFieldErrors(w, validationFields(err))
		return
	}
	_, err := r.credentials.Create(req.Context(), payload.Email, payload.FullName, payload.Password, domain.RoleStudent)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			writeFieldErrors(w, map[string]string{"email": "email already registered"})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeFieldErrors(w, validationFields(err))
		return
	}
	user, pair, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": pair,
		"user":   userPayload(user),
	})
}

func (r *Router) handleOTPSend(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeFieldErrors(w, validationFields(err))
		return
	}
	if err := r.otp.Send(req.Context(), payload.Email); err != nil {
		r.logger.Error("otp dispatch failed", "email", payload.Email, "error", err)
		writeError(w, http.StatusBadGateway, "could not send OTP email")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent successfully"})
}

func (r *Router) handleOTPVerify(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"otp_code" validate:"required,len=6"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeFieldErrors(w, validationFields(err))
		return
	}
	if err := r.otp.Verify(req.Context(), payload.Email, payload.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrNotFound):
			writeError(w, http.StatusBadRequest, "OTP not found")
		case errors.Is(err, otp.ErrExpired):
			writeError(w, http.StatusBadRequest, "OTP has expired")
		case errors.Is(err, otp.ErrMismatch):
			writeError(w, http.StatusBadRequest, "Invalid OTP")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP verified successfully"})
}

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	caller, ok := callerFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for dashboard", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Welcome to the Dashboard!",
		"user":    userPayload(caller),
	})
}

func (r *Router) handleAdminLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeFieldErrors(w, validationFields(err))
		return
	}
	user, pair, err := r.auth.AdminLogin(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusForbidden, "Invalid Admin Credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": pair,
		"user":   userPayload(user),
	})
}

func (r *Router) handleAdminLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.Logout(req.Context(), payload.RefreshToken); err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshMissing):
			writeError(w, http.StatusBadRequest, "Refresh token is required.")
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, token.ErrWrongTokenType), errors.Is(err, auth.ErrTokenRevoked):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Admin logged out successfully."})
}

func (r *Router) handleAdminProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	caller, _ := callerFromContext(req.Context())
	profile, err := r.admin.Profile(caller)
	if err != nil {
		writeError(w, http.StatusForbidden, "Not an admin")
		return
	}
	writeJSON(w, http.StatusOK, userPayload(profile))
}

func (r *Router) handleAdminCreateUser(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	caller, _ := callerFromContext(req.Context())
	var payload struct {
		Email    string `json:"email" validate:"required,email"`
		FullName string `json:"full_name" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role" validate:"required"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeFieldErrors(w, validationFields(err))
		return
	}
	role, err := domain.ParseRole(payload.Role)
	if err != nil {
		writeFieldErrors(w, map[string]string{"role": err.Error()})
		return
	}
	user, err := r.admin.CreateUser(req.Context(), caller, payload.Email, payload.FullName, payload.Password, role)
	if err != nil {
		r.respondAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User " + string(user.Role) + " created successfully",
		"user":    userPayload(user),
	})
}

func (r *Router) handleAdminUsers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	caller, _ := callerFromContext(req.Context())
	users, err := r.admin.ListUsers(req.Context(), caller)
	if err != nil {
		r.respondAdminError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(users))
	for i := range users {
		payload = append(payload, userPayload(&users[i]))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleAdminDeleteUser(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	userID := strings.TrimPrefix(req.URL.Path, "/admin/delete-user/")
	if userID == "" || strings.Contains(userID, "/") {
		r.notFound(w)
		return
	}
	caller, _ := callerFromContext(req.Context())
	if err := r.admin.DeleteUser(req.Context(), caller, userID); err != nil {
		r.respondAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleAdminUpdateUser(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	userID := strings.TrimPrefix(req.URL.Path, "/admin/update-user/")
	if userID == "" || strings.Contains(userID, "/") {
		r.notFound(w)
		return
	}
	caller, _ := callerFromContext(req.Context())
	var payload struct {
		Email    *string `json:"email"`
		FullName *string `json:"full_name"`
		Role     *string `json:"role"`
		IsActive *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	update := domain.UserUpdate{
		Email:    payload.Email,
		FullName: payload.FullName,
		IsActive: payload.IsActive,
	}
	if payload.Role != nil {
		role, err := domain.ParseRole(*payload.Role)
		if err != nil {
			writeFieldErrors(w, map[string]string{"role": err.Error()})
			return
		}
		update.Role = &role
	}
	user, err := r.admin.UpdateUser(req.Context(), caller, userID, update)
	if err != nil {
		r.respondAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User updated successfully",
		"user":    userPayload(user),
	})
}

func (r *Router) handleAdminToggleFreeze(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPatch {
		r.methodNotAllowed(w)
		return
	}
	userID := strings.TrimPrefix(req.URL.Path, "/admin/toggle-freeze/")
	if userID == "" || strings.Contains(userID, "/") {
		r.notFound(w)
		return
	}
	caller, _ := callerFromContext(req.Context())
	user, err := r.admin.ToggleFreeze(req.Context(), caller, userID)
	if err != nil {
		r.respondAdminError(w, err)
		return
	}
	state := "unfrozen"
	if !user.IsActive {
		state = "frozen"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User " + state + " successfully",
		"user":    userPayload(user),
	})
}

// respondAdminError maps admin service failures onto HTTP statuses.
func (r *Router) respondAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admin.ErrForbidden):
		writeError(w, http.StatusForbidden, "Only Admins can perform this action")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, admin.ErrRoleNotAllowed),
		errors.Is(err, repository.ErrDuplicateEmail),
		errors.Is(err, credential.ErrEmailRequired),
		errors.Is(err, credential.ErrFullNameRequired),
		errors.Is(err, credential.ErrPasswordRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if caller, ok := callerFromContext(ctx); ok {
			actor = string(caller.Role)
			fields = append(fields, "user_id", caller.ID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
