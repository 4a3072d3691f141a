package rpc

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func postRPC(t *testing.T, s *Server, body string) Response {
	t.Helper()

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	s.handleRPC(w, req)

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHandleRPCParseError(t *testing.T) {
	s := NewServer(nil)

	resp := postRPC(t, s, "{not json")
	if resp.Error == nil || resp.Error.Code != ParseError {
		t.Errorf("error = %+v, want code %d", resp.Error, ParseError)
	}
}

func TestHandleRPCInvalidRequest(t *testing.T) {
	s := NewServer(nil)

	resp := postRPC(t, s, `{"jsonrpc": "1.0", "method": "service_getInfo", "id": 1}`)
	if resp.Error == nil || resp.Error.Code != InvalidRequest {
		t.Errorf("error = %+v, want code %d", resp.Error, InvalidRequest)
	}
	if resp.ID != float64(1) {
		t.Errorf("id = %v, want 1", resp.ID)
	}
}

func TestHandleRPCMethodNotFound(t *testing.T) {
	s := NewServer(nil)

	resp := postRPC(t, s, `{"jsonrpc": "2.0", "method": "service_doesNotExist", "id": 2}`)
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Errorf("error = %+v, want code %d", resp.Error, MethodNotFound)
	}
	if resp.Error.Data != "service_doesNotExist" {
		t.Errorf("error data = %v, want method name", resp.Error.Data)
	}
}

func TestHandleRPCRegisteredMethods(t *testing.T) {
	s := NewServer(nil)

	for _, method := range []string{
		"service_getInfo",
		"service_getPairs",
		"swap_create",
		"swap_setInvoice",
		"swap_createReverse",
		"chain_broadcastTransaction",
		"wallet_deriveKeys",
		"admin_addReferral",
	} {
		if _, ok := s.handlers[method]; !ok {
			t.Errorf("handler %s not registered", method)
		}
	}
}
