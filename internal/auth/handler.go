package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"booking-api/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

const (
	statusSuccess = "Success"
	statusError   = "Error"

	msgUserCreated        = "User created successfully!"
	msgUserExists         = "User already exists!"
	msgUserCreationFailed = "User creation failed! Please check user details and try again."
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required.Error("User Name is required.")),
		validation.Field(&r.Password, validation.Required.Error("Password is required.")),
	)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required.Error("User Name is required.")),
		validation.Field(&r.Email, validation.Required.Error("Email is required."), is.Email),
		validation.Field(&r.Password, validation.Required.Error("Password is required.")),
	)
}

// Response is the body of both registration endpoints.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := body.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var lockedErr ErrLoginLocked
		if errors.As(err, &lockedErr) {
			retryAfter := int(time.Until(lockedErr.Until).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "login temporarily locked"})
			return
		}

		observability.CaptureError("auth.login", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to login"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.register(RoleMember).ServeHTTP(w, r)
}

func (h *Handler) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	h.register(RoleAdmin).ServeHTTP(w, r)
}

// register answers 500 for a duplicate user as well as for creation
// failures; existing clients rely on that status.
func (h *Handler) register(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body registerRequest
		if !decodeBody(w, r, &body) {
			return
		}
		if err := body.Validate(); err != nil {
			writeValidationError(w, err)
			return
		}

		err := h.service.Register(r.Context(), RegisterInput{
			Username: body.Username,
			Email:    body.Email,
			Password: body.Password,
		}, role)
		if err != nil {
			if errors.Is(err, ErrDuplicateUser) {
				writeJSON(w, http.StatusInternalServerError, Response{Status: statusError, Message: msgUserExists})
				return
			}
			if !errors.Is(err, ErrUserCreationFailed) {
				observability.CaptureError("auth.register", err)
			}
			writeJSON(w, http.StatusInternalServerError, Response{Status: statusError, Message: msgUserCreationFailed})
			return
		}

		writeJSON(w, http.StatusOK, Response{Status: statusSuccess, Message: msgUserCreated})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return false
	}

	return true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": fieldErrs})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
