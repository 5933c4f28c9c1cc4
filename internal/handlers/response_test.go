package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestInvalidResponseEnvelope(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	InvalidResponse(c, http.StatusBadRequest, CodeFolderExists, "Folder exists", "tenant folder already exists")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.ErrorCode != 101 || env.Error != "Folder exists" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Description == "" {
		t.Fatal("envelope description empty")
	}
	if !c.IsAborted() {
		t.Fatal("context not aborted after error response")
	}
}
