package protocol

import (
	"bufio"
	"strings"
	"testing"
)

func TestRequestEncodeDecodeRoundTrip(t *testing.T) {
	req := NewRequest(CmdGet, map[string]string{"key": "my-token"})

	line, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if !strings.HasSuffix(string(line), "\n") {
		t.Fatal("encoded request must be newline-terminated")
	}

	got, err := DecodeRequest(line)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if got.Command != req.Command || got.Params["key"] != "my-token" {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestResponseEncodeOmitsErrorFieldsWhenOk(t *testing.T) {
	resp := Success(map[string]any{"value": "xxx"})

	line, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	encoded := string(line)
	if strings.Contains(encoded, `"error"`) || strings.Contains(encoded, `"message"`) {
		t.Errorf("ok response should omit error/message fields, got %s", encoded)
	}

	got, err := DecodeResponse(line)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !got.Ok || got.Data["value"] != "xxx" {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
}

func TestResponseEncodeIncludesErrorFieldsWhenFailed(t *testing.T) {
	resp := Fail("locked", "Stash is locked.")

	line, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	encoded := string(line)
	if !strings.Contains(encoded, `"error":"locked"`) {
		t.Errorf("expected error field in encoded failure, got %s", encoded)
	}

	got, err := DecodeResponse(line)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if got.Ok || got.Error != "locked" || got.Message != "Stash is locked." {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("{\"command\":\"health\",\"params\":{}}\n"))
	line, err := ReadLine(r)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	req, err := DecodeRequest(line)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Command != CmdHealth {
		t.Errorf("got %q, want %q", req.Command, CmdHealth)
	}
}

func TestReadLine_HandlesLongLines(t *testing.T) {
	longValue := strings.Repeat("x", 1<<16)
	encoded := `{"command":"add","params":{"key":"k","value":"` + longValue + "\"}}\n"
	r := bufio.NewReader(strings.NewReader(encoded))

	line, err := ReadLine(r)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	req, err := DecodeRequest(line)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if len(req.Params["value"]) != len(longValue) {
		t.Errorf("long value truncated: got %d bytes, want %d", len(req.Params["value"]), len(longValue))
	}
}
