package transport

import "testing"

func TestParseResponse_ReplyFieldOrder(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"output field", `{"output":"hello"}`, "hello"},
		{"text field", `{"text":"hi"}`, "hi"},
		{"output beats message", `{"message":"second","output":"first"}`, "first"},
		{"skips empty candidates", `{"output":"","text":"fallback"}`, "fallback"},
		{"skips non-string candidates", `{"output":42,"reply":"real"}`, "real"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResponse(200, "OK", []byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseResponse_PlainTextBody(t *testing.T) {
	got, err := parseResponse(200, "OK", []byte("  just plain text\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "just plain text" {
		t.Fatalf("reply = %q", got)
	}
}

func TestParseResponse_BareJSONString(t *testing.T) {
	got, err := parseResponse(200, "OK", []byte(`"quoted reply"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "quoted reply" {
		t.Fatalf("reply = %q, want unquoted string", got)
	}
}

func TestParseResponse_UnrecognizedObject(t *testing.T) {
	got, err := parseResponse(200, "OK", []byte(`{"status": "done"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"status":"done"}` {
		t.Fatalf("reply = %q, want compact object", got)
	}
}

func TestParseResponse_EmptyBodyIsEmptyReply(t *testing.T) {
	got, err := parseResponse(200, "OK", nil)
	if err != nil {
		t.Fatalf("empty body must not be an error, got %v", err)
	}
	if got != "" {
		t.Fatalf("reply = %q, want empty", got)
	}
}

func TestParseResponse_RemoteErrorFields(t *testing.T) {
	_, err := parseResponse(500, "Internal Server Error", []byte(`{"errorMessage":"bad node config"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Kind != KindRemote {
		t.Fatalf("kind = %v, want remote", err.Kind)
	}
	if err.Message != "bad node config" {
		t.Fatalf("message = %q", err.Message)
	}
}

func TestParseResponse_RemoteErrorFallsBackToStatusText(t *testing.T) {
	_, err := parseResponse(502, "Bad Gateway", []byte("<html>nginx</html>"))
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Message != "Bad Gateway" {
		t.Fatalf("message = %q, want status text", err.Message)
	}
}

func TestParseResponse_RemoteErrorFieldOrder(t *testing.T) {
	_, err := parseResponse(500, "Internal Server Error", []byte(`{"message":"generic","errorMessage":"specific"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Message != "specific" {
		t.Fatalf("message = %q, errorMessage must win over message", err.Message)
	}
}

func TestParseResponse_SuccessBodyNeverTreatedAsError(t *testing.T) {
	// An "error" field in a 2xx body is data, not a failure.
	got, err := parseResponse(200, "OK", []byte(`{"output":"fine","error":"ignored"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fine" {
		t.Fatalf("reply = %q", got)
	}
}
