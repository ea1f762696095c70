package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bonus-tracker-api/internal/database"
	"bonus-tracker-api/internal/models"
	"bonus-tracker-api/internal/service"
)

func setupTestHandler(t *testing.T) (*Handler, func()) {
	dbPath := "./test_" + uuid.New().String() + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	svc := service.NewService(db)
	h := NewHandler(svc)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return h, cleanup
}

func setupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func createTestBonus(t *testing.T, r *chi.Mux, body map[string]interface{}) models.BonusRecord {
	t.Helper()

	payload, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/bonuses", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating bonus, got %d: %s", w.Code, w.Body.String())
	}

	var rec models.BonusRecord
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return rec
}

func TestCreateBonusEndpoint(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":          uuid.New().String(),
		"category":         "bank",
		"institution_name": "Chase",
		"bonus_amount":     "300",
	})

	if rec.ID == "" {
		t.Error("expected server-assigned id")
	}
	if rec.Status != models.StatusPending {
		t.Errorf("expected pending, got %s", rec.Status)
	}
	if !rec.IsTaxable {
		t.Error("expected is_taxable to default to true")
	}
}

func TestCreateBonusEndpoint_InvalidJSON(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("POST", "/bonuses", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateBonusEndpoint_ValidationError(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{
			name: "bad user id",
			body: map[string]interface{}{
				"user_id":          "not-a-uuid",
				"category":         "bank",
				"institution_name": "Chase",
				"bonus_amount":     "300",
			},
		},
		{
			name: "unknown category",
			body: map[string]interface{}{
				"user_id":          uuid.New().String(),
				"category":         "brokerage",
				"institution_name": "Chase",
				"bonus_amount":     "300",
			},
		},
		{
			name: "missing institution",
			body: map[string]interface{}{
				"user_id":      uuid.New().String(),
				"category":     "bank",
				"bonus_amount": "300",
			},
		},
		{
			name: "negative amount",
			body: map[string]interface{}{
				"user_id":          uuid.New().String(),
				"category":         "bank",
				"institution_name": "Chase",
				"bonus_amount":     "-5",
			},
		},
		{
			name: "spend requirement on bank bonus",
			body: map[string]interface{}{
				"user_id":           uuid.New().String(),
				"category":          "bank",
				"institution_name":  "Chase",
				"bonus_amount":      "300",
				"spend_requirement": "4000",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, _ := json.Marshal(tt.body)
			req := httptest.NewRequest("POST", "/bonuses", bytes.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}

			var errResp models.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if errResp.Error == "" {
				t.Error("expected error message in response")
			}
		})
	}
}

func TestGetBonusEndpoint(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	deadline := time.Now().UTC().AddDate(0, 0, 5).Format(time.RFC3339)
	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":          uuid.New().String(),
		"category":         "bank",
		"institution_name": "Chase",
		"bonus_amount":     "300",
		"deadline":         deadline,
	})

	req := httptest.NewRequest("GET", "/bonuses/"+rec.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var view models.BonusView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if view.ID != rec.ID {
		t.Errorf("expected id %s, got %s", rec.ID, view.ID)
	}
	if view.Urgency != "urgent" {
		t.Errorf("expected urgent for a 5-day deadline, got %s", view.Urgency)
	}
	if view.DaysUntilDeadline == nil {
		t.Error("expected days_until_deadline for a pending bonus with deadline")
	}
}

func TestGetBonusEndpoint_NotFound(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("GET", "/bonuses/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestTransitionEndpoint(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":          uuid.New().String(),
		"category":         "bank",
		"institution_name": "Chase",
		"bonus_amount":     "300",
	})

	body := []byte(`{"target": "earned"}`)
	req := httptest.NewRequest("POST", "/bonuses/"+rec.ID+"/transition", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var updated models.BonusRecord
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if updated.Status != models.StatusEarned {
		t.Errorf("expected earned, got %s", updated.Status)
	}
	if !updated.RequirementsMet {
		t.Error("expected requirements_met after earning")
	}
}

func TestTransitionEndpoint_Illegal(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":          uuid.New().String(),
		"category":         "bank",
		"institution_name": "Chase",
		"bonus_amount":     "300",
	})

	// pending -> received skips earned
	body := []byte(`{"target": "received"}`)
	req := httptest.NewRequest("POST", "/bonuses/"+rec.ID+"/transition", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTransitionEndpoint_UnknownTarget(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":          uuid.New().String(),
		"category":         "bank",
		"institution_name": "Chase",
		"bonus_amount":     "300",
	})

	body := []byte(`{"target": "cancelled"}`)
	req := httptest.NewRequest("POST", "/bonuses/"+rec.ID+"/transition", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateBonusEndpoint(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":           uuid.New().String(),
		"category":          "creditCard",
		"institution_name":  "Amex",
		"card_name":         "Gold",
		"bonus_amount":      "60000",
		"spend_requirement": "4000",
		"current_spend":     "1000",
	})

	body := []byte(`{"current_spend": "2500"}`)
	req := httptest.NewRequest("PATCH", "/bonuses/"+rec.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var updated models.BonusRecord
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if updated.CurrentSpend == nil || !updated.CurrentSpend.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("expected current_spend 2500, got %v", updated.CurrentSpend)
	}
	// Untouched fields survive the partial update.
	if updated.CardName != "Gold" {
		t.Errorf("expected card_name preserved, got %s", updated.CardName)
	}
}

func TestUpdateBonusEndpoint_StatusOverride(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":          uuid.New().String(),
		"category":         "bank",
		"institution_name": "Chase",
		"bonus_amount":     "300",
	})

	body := []byte(`{"status": "received"}`)
	req := httptest.NewRequest("PATCH", "/bonuses/"+rec.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var updated models.BonusRecord
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if updated.Status != models.StatusReceived {
		t.Errorf("expected received, got %s", updated.Status)
	}
	if updated.ReceivedDate == nil || !updated.RequirementsMet {
		t.Error("expected override to normalize received invariants")
	}
}

func TestDeleteBonusEndpoint(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":          uuid.New().String(),
		"category":         "bank",
		"institution_name": "Chase",
		"bonus_amount":     "300",
	})

	req := httptest.NewRequest("DELETE", "/bonuses/"+rec.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/bonuses/"+rec.ID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestListBonusesEndpoint_SweepWithExplicitNow(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	userID := uuid.New().String()
	now := time.Date(2025, 10, 21, 10, 0, 0, 0, time.UTC)
	overdue := now.AddDate(0, 0, -5).Format(time.RFC3339)
	future := now.AddDate(0, 0, 30).Format(time.RFC3339)

	createTestBonus(t, r, map[string]interface{}{
		"user_id":          userID,
		"category":         "bank",
		"institution_name": "Wells Fargo",
		"bonus_amount":     "200",
		"deadline":         overdue,
	})
	createTestBonus(t, r, map[string]interface{}{
		"user_id":          userID,
		"category":         "bank",
		"institution_name": "Citi",
		"bonus_amount":     "400",
		"deadline":         future,
	})

	url := fmt.Sprintf("/users/%s/bonuses?now=%s", userID, now.Format(time.RFC3339))
	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.ListBonusesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Bonuses) != 2 {
		t.Fatalf("expected 2 bonuses, got %d", len(resp.Bonuses))
	}
	if resp.Expired != 1 {
		t.Errorf("expected 1 auto-expiry, got %d", resp.Expired)
	}

	statuses := map[models.Status]int{}
	for _, b := range resp.Bonuses {
		statuses[b.Status]++
	}
	if statuses[models.StatusExpired] != 1 || statuses[models.StatusPending] != 1 {
		t.Errorf("expected one expired and one pending, got %v", statuses)
	}
}

func TestListBonusesEndpoint_InvalidNow(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("GET", "/users/"+uuid.New().String()+"/bonuses?now=yesterday", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	userID := uuid.New().String()
	now := time.Date(2025, 10, 21, 10, 0, 0, 0, time.UTC)
	soon := now.AddDate(0, 0, 3).Format(time.RFC3339)

	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":          userID,
		"category":         "bank",
		"institution_name": "Chase",
		"bonus_amount":     "300",
	})
	createTestBonus(t, r, map[string]interface{}{
		"user_id":          userID,
		"category":         "bank",
		"institution_name": "Citi",
		"bonus_amount":     "500",
		"deadline":         soon,
	})

	// Walk the first bonus to received so the dashboard has a total.
	for _, target := range []string{"earned", "received"} {
		body := []byte(`{"target": "` + target + `"}`)
		req := httptest.NewRequest("POST", "/bonuses/"+rec.ID+"/transition", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 on transition to %s, got %d: %s", target, w.Code, w.Body.String())
		}
	}

	url := fmt.Sprintf("/users/%s/dashboard?now=%s", userID, now.Format(time.RFC3339))
	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.DashboardResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.TotalReceivedValue.Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected total received value 300, got %s", resp.TotalReceivedValue)
	}
	if resp.CountsByStatus[models.StatusReceived] != 1 || resp.CountsByStatus[models.StatusPending] != 1 {
		t.Errorf("unexpected counts: %v", resp.CountsByStatus)
	}
	if len(resp.UrgentAlerts) != 1 {
		t.Errorf("expected 1 urgent alert, got %d", len(resp.UrgentAlerts))
	}
}

func TestTaxSummaryEndpoint(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	userID := uuid.New().String()
	rec := createTestBonus(t, r, map[string]interface{}{
		"user_id":          userID,
		"category":         "bank",
		"institution_name": "Chase",
		"bonus_amount":     "300",
	})

	for _, target := range []string{"earned", "received"} {
		body := []byte(`{"target": "` + target + `"}`)
		req := httptest.NewRequest("POST", "/bonuses/"+rec.ID+"/transition", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 on transition to %s, got %d", target, w.Code)
		}
	}

	year := time.Now().UTC().Year()
	url := fmt.Sprintf("/users/%s/tax-summary?year=%d", userID, year)
	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.TaxSummaryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.TaxableTotal.Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected taxable total 300, got %s", resp.TaxableTotal)
	}
	if resp.Form1099Pending != 1 {
		t.Errorf("expected 1 pending 1099, got %d", resp.Form1099Pending)
	}
}

func TestTaxSummaryEndpoint_MissingYear(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("GET", "/users/"+uuid.New().String()+"/tax-summary", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
