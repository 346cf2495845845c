package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateDecodesImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			http.NotFound(w, r)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Prompt != "a fox coloring page" || req.Model != "test-model" {
			t.Errorf("unexpected request payload: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	client := New(srv.URL+"/v1", "", "test-model")
	img, err := client.Generate(context.Background(), "a fox coloring page", "1024x1024")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(img) != string(png) {
		t.Fatalf("unexpected image bytes: %v", img)
	}
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "prompt rejected"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "", "test-model")
	if _, err := client.Generate(context.Background(), "bad prompt", ""); err == nil {
		t.Fatal("expected api error")
	}
}

func TestGenerateRequiresPrompt(t *testing.T) {
	client := New("http://localhost:9", "", "test-model")
	if _, err := client.Generate(context.Background(), "   ", ""); err == nil {
		t.Fatal("expected prompt validation error")
	}
}
