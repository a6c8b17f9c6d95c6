package ipc

import (
	"encoding/json"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	req := &Request{
		Cmd:  CmdQueueJump,
		Data: json.RawMessage(`{"index":3}`),
	}

	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}

	// Verify it's valid JSON
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Result is not valid JSON: %v", err)
	}

	if decoded["cmd"] != "queueJump" {
		t.Errorf("Expected cmd 'queueJump', got '%v'", decoded["cmd"])
	}
}

func TestDecodeRequestWithData(t *testing.T) {
	data := []byte(`{"cmd":"browse","data":{"level":{"type":2,"filters":["genre_id%3A4"]},"offset":20,"count":10}}`)

	req, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}

	if req.Cmd != CmdBrowse {
		t.Errorf("Expected cmd 'browse', got '%s'", req.Cmd)
	}

	var browseReq BrowseRequest
	if err := json.Unmarshal(req.Data, &browseReq); err != nil {
		t.Fatalf("Failed to unmarshal data: %v", err)
	}

	if browseReq.Level.Type.String() != "artists" {
		t.Errorf("Expected artists level, got '%s'", browseReq.Level.Type)
	}
	if len(browseReq.Level.Filters) != 1 || browseReq.Level.Filters[0] != "genre_id%3A4" {
		t.Errorf("Unexpected filters %v", browseReq.Level.Filters)
	}
	if browseReq.Offset != 20 || browseReq.Count != 10 {
		t.Errorf("Expected offset 20 count 10, got %d %d", browseReq.Offset, browseReq.Count)
	}
}

func TestDecodeRequestInvalid(t *testing.T) {
	data := []byte(`not valid json`)

	_, err := DecodeRequest(data)
	if err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestDecodeResponseError(t *testing.T) {
	data := []byte(`{"success":false,"error":"busy"}`)

	resp, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}

	if resp.Success {
		t.Error("Expected success to be false")
	}

	if resp.Error != "busy" {
		t.Errorf("Expected error 'busy', got '%s'", resp.Error)
	}
}

func TestNewSuccessResponse(t *testing.T) {
	statusData := StatusResponse{
		State:    "playing",
		Position: 1000,
		Duration: 180000,
	}

	resp, err := NewSuccessResponse(statusData)
	if err != nil {
		t.Fatalf("NewSuccessResponse failed: %v", err)
	}

	if !resp.Success {
		t.Error("Expected success to be true")
	}

	// Verify data can be decoded back
	var decoded StatusResponse
	if err := json.Unmarshal(resp.Data, &decoded); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}

	if decoded.State != "playing" {
		t.Errorf("Expected state 'playing', got '%s'", decoded.State)
	}
}

func TestNewSuccessResponseNilData(t *testing.T) {
	resp, err := NewSuccessResponse(nil)
	if err != nil {
		t.Fatalf("NewSuccessResponse failed: %v", err)
	}

	if resp.Data != nil {
		t.Error("Expected data to be nil")
	}
}

func TestNewPushMessage(t *testing.T) {
	data, err := NewPushMessage(PushStatus, StatusResponse{State: "paused"})
	if err != nil {
		t.Fatalf("NewPushMessage failed: %v", err)
	}

	var msg PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if msg.Type != "status" {
		t.Errorf("Expected type 'status', got '%s'", msg.Type)
	}

	var status StatusResponse
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Unmarshal data failed: %v", err)
	}
	if status.State != "paused" {
		t.Errorf("Expected state 'paused', got '%s'", status.State)
	}
}

func TestRepeatModes(t *testing.T) {
	for mode := 0; mode <= 2; mode++ {
		name := RepeatModeName(mode)
		back, ok := RepeatModeValue(name)
		if !ok || back != mode {
			t.Errorf("Repeat mode %d maps to %q and back to %d", mode, name, back)
		}
	}

	if RepeatModeName(7) != "off" {
		t.Error("Expected unknown repeat mode to be off")
	}
	if _, ok := RepeatModeValue("sometimes"); ok {
		t.Error("Expected 'sometimes' to be rejected")
	}
}
