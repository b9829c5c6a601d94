package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tempora-hq/be-tt-timesheets/pkg/logger"
)

func testHandler() *HTTPHandler {
	return &HTTPHandler{log: logger.New(logger.Config{Level: "error"})}
}

func TestDecodeOptionalAcceptsEmptyBody(t *testing.T) {
	h := testHandler()

	var dst struct {
		Mode *string `json:"approval_mode"`
	}
	r := httptest.NewRequest(http.MethodPatch, "/projects/p1/approval-settings", nil)
	w := httptest.NewRecorder()

	if !h.decodeOptional(w, r, &dst) {
		t.Fatalf("bodyless request rejected with status %d", w.Code)
	}
	if dst.Mode != nil {
		t.Errorf("expected zeroed patch, got %v", *dst.Mode)
	}
}

func TestDecodeOptionalDecodesPresentBody(t *testing.T) {
	h := testHandler()

	var dst struct {
		Mode *string `json:"approval_mode"`
	}
	r := httptest.NewRequest(http.MethodPatch, "/projects/p1/approval-settings",
		strings.NewReader(`{"approval_mode":"multi_stage"}`))
	w := httptest.NewRecorder()

	if !h.decodeOptional(w, r, &dst) {
		t.Fatalf("valid body rejected with status %d", w.Code)
	}
	if dst.Mode == nil || *dst.Mode != "multi_stage" {
		t.Errorf("Mode = %v, want multi_stage", dst.Mode)
	}
}

func TestDecodeOptionalRejectsMalformedBody(t *testing.T) {
	h := testHandler()

	var dst struct{}
	r := httptest.NewRequest(http.MethodPatch, "/projects/p1/approval-settings", strings.NewReader("{"))
	w := httptest.NewRecorder()

	if h.decodeOptional(w, r, &dst) {
		t.Fatal("malformed body accepted")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
