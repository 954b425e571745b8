package httpio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBody = 1 << 20

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, code int, kind string, extra map[string]any) {
	body := map[string]any{"error": kind}
	for k, v := range extra {
		body[k] = v
	}
	WriteJSON(w, code, body)
}

// Bind decodes a JSON body into out and validates it. On failure it writes a
// 400 response and returns the error so the handler can stop.
func Bind(w http.ResponseWriter, r *http.Request, v *validator.Validate, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request_body", map[string]any{"msg": err.Error()})
		return fmt.Errorf("decode body: %w", err)
	}
	if err := v.Struct(out); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_failed", map[string]any{"fields": fieldErrors(err)})
		return err
	}
	return nil
}

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Namespace()] = fe.Tag()
		}
		return out
	}
	out["error"] = err.Error()
	return out
}

// NewValidator reports field errors by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
