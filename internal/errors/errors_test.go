package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "resource not found"},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeTransient,
				Message: "crm upsert failed",
				Cause:   errors.New("503"),
			},
			want: "crm upsert failed: 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Terminal(cause, "bad payload")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(Terminal(cause), cause) = false, want true")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
		is   func(error) bool
	}{
		{"not found", NotFound("missing"), ErrCodeNotFound, IsNotFound},
		{"not foundf", NotFoundf("missing %s", "x"), ErrCodeNotFound, IsNotFound},
		{"conflict", Conflict("dup"), ErrCodeConflict, IsConflict},
		{"validation", Validation("bad"), ErrCodeValidation, IsValidation},
		{"validationf", Validationf("bad %d", 1), ErrCodeValidation, IsValidation},
		{"rate limited", RateLimited("slow down", time.Hour), ErrCodeRateLimited, IsRateLimited},
		{"transient", Transient(errors.New("x"), "retry"), ErrCodeTransient, IsTransient},
		{"terminal", Terminal(errors.New("x"), "stop"), ErrCodeTerminal, IsTerminal},
		{"unauthorized", Unauthorized("no"), ErrCodeUnauthorized, IsUnauthorized},
		{"internal", Internal("boom"), ErrCodeInternal, IsInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !tt.is(wrapped) {
				t.Errorf("predicate did not match wrapped %v", tt.code)
			}
			if GetCode(wrapped) != tt.code {
				t.Errorf("GetCode() = %v, want %v", GetCode(wrapped), tt.code)
			}
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("email", "email is invalid")
	if GetField(err) != "email" {
		t.Errorf("GetField() = %q, want email", GetField(err))
	}
	if GetField(errors.New("plain")) != "" {
		t.Errorf("GetField(plain) should be empty")
	}
}

func TestGetRetryAfter(t *testing.T) {
	err := fmt.Errorf("wrap: %w", RateLimited("wait", 3*time.Hour))
	if got := GetRetryAfter(err); got != 3*time.Hour {
		t.Errorf("GetRetryAfter() = %v, want 3h", got)
	}
	if got := GetRetryAfter(errors.New("x")); got != 0 {
		t.Errorf("GetRetryAfter(plain) = %v, want 0", got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, ErrCodeInternal, "x %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
	cause := errors.New("cause")
	err := Wrapf(cause, ErrCodeTimeout, "call %s", "crm")
	if err.Message != "call crm" || !errors.Is(err, cause) || !IsTimeout(err) {
		t.Errorf("Wrapf() = %+v", err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("network"), true},
		{"transient", Transient(errors.New("x"), "t"), true},
		{"timeout", Wrap(errors.New("x"), ErrCodeTimeout, "t"), true},
		{"terminal", Terminal(errors.New("x"), "t"), false},
		{"validation", Validation("bad"), false},
		{"not found", NotFound("gone"), false},
		{"terminal wrapped", fmt.Errorf("handler: %w", Terminal(errors.New("x"), "t")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
