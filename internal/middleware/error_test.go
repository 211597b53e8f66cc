package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func decodeEnvelope(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

// Property: every status the API answers with carries the same envelope
func TestProperty_ErrorEnvelopeMatchesStatus(t *testing.T) {
	statuses := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	}

	properties := gopter.NewProperties(nil)

	properties.Property("code is the status text and timestamp is RFC3339", prop.ForAll(
		func(idx int, message string) bool {
			status := statuses[idx]
			w := httptest.NewRecorder()
			RespondWithError(w, status, message)

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				return false
			}
			if _, err := time.Parse(time.RFC3339, resp.Error.Timestamp); err != nil {
				return false
			}

			return w.Code == status &&
				w.Header().Get("Content-Type") == "application/json" &&
				resp.Error.Code == http.StatusText(status) &&
				resp.Error.Message == message &&
				resp.Error.Details == nil
		},
		gen.IntRange(0, len(statuses)-1),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRespondWithErrorDetails_StockShortage(t *testing.T) {
	productID := uuid.New()
	w := httptest.NewRecorder()

	RespondWithErrorDetails(w, http.StatusBadRequest, "Only 3 items available", map[string]interface{}{
		"product_id":   productID.String(),
		"product_name": "Headphones",
		"available":    3,
		"requested":    5,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)

	var raw map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Contains(t, raw["error"], "details")

	var details struct {
		ProductID   uuid.UUID `json:"product_id"`
		ProductName string    `json:"product_name"`
		Available   int       `json:"available"`
		Requested   int       `json:"requested"`
	}
	require.NoError(t, json.Unmarshal(raw["error"]["details"], &details))
	assert.Equal(t, productID, details.ProductID)
	assert.Equal(t, "Headphones", details.ProductName)
	assert.Equal(t, 3, details.Available, "clients read the remaining stock from details.available")
	assert.Equal(t, 5, details.Requested)

	resp := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, "Bad Request", resp.Error.Code)
	assert.Equal(t, "Only 3 items available", resp.Error.Message)
}

func TestRespondWithValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()

	RespondWithValidationErrors(w, []ValidationError{
		{Field: "phone_number", Message: "This field is required"},
		{Field: "quantity", Message: "Ensure this value is greater than or equal to 1"},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				ValidationErrors []ValidationError `json:"validation_errors"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "validation failed", resp.Error.Message)
	require.Len(t, resp.Error.Details.ValidationErrors, 2)
	assert.Equal(t, "phone_number", resp.Error.Details.ValidationErrors[0].Field)
	assert.Equal(t, "quantity", resp.Error.Details.ValidationErrors[1].Field)
}

func TestErrorHandlingMiddleware_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := ErrorHandlingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("checkout exploded")
	}))

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders", nil))
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, "internal server error", resp.Error.Message, "panic values never reach the client")

	entries := logs.FilterMessage("Panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/orders", entries[0].ContextMap()["path"])
	assert.Equal(t, http.MethodPost, entries[0].ContextMap()["method"])
}

func TestErrorHandlingMiddleware_RepanicsAbortHandler(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := ErrorHandlingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	w := httptest.NewRecorder()
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	})

	assert.Empty(t, w.Body.Bytes(), "an aborted response gets no error body")
	assert.Zero(t, logs.Len())
}

func TestErrorHandlingMiddleware_PassesThrough(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondWithJSON(w, http.StatusCreated, map[string]string{"status": "pending"})
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders", nil))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":"pending"}`, w.Body.String())
}
