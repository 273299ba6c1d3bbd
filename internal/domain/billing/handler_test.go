package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandler_CreateRecord(t *testing.T) {
	svc, p := newTestService(t)
	h := NewHandler(svc)
	e := echo.New()

	body := `{"patient_id":"` + p.ID + `","service":"X-Ray","amount":"80.5","date":"2024-04-30"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.CreateRecord(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["amount"] != 80.5 || got["date"] != "2024-04-30" {
		t.Errorf("unexpected body %v", got)
	}
}

func TestHandler_CreateRecord_BadAmount(t *testing.T) {
	svc, p := newTestService(t)
	h := NewHandler(svc)
	e := echo.New()

	body := `{"patient_id":"` + p.ID + `","service":"X-Ray","amount":"-1","date":"2024-04-30"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := h.CreateRecord(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListAndDelete(t *testing.T) {
	svc, p := newTestService(t)
	h := NewHandler(svc)
	e := echo.New()
	r, _ := svc.Add(context.Background(), RecordInput{PatientID: p.ID, Service: "X", Amount: "10", Date: "2024-05-01"})

	rec := httptest.NewRecorder()
	if err := h.ListRecords(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/billing", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1 record, got %d", resp.Total)
	}

	rec = httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	if err := h.DeleteRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
