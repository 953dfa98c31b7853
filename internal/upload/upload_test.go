package upload

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"peerprep/interview/internal/store/storetest"
	"peerprep/interview/internal/token"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st := storetest.Open(t)
	auth := token.New("test-secret")
	dir := t.TempDir()
	return New(st, auth, dir)
}

// buildUploadRequest constructs a real multipart/form-data request carrying
// one file part, the same way a browser <form> upload arrives.
func buildUploadRequest(t *testing.T, fieldName, fileName, content string) (multipart.File, *multipart.FileHeader) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile returned error: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/media", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm returned error: %v", err)
	}
	file, header, err := req.FormFile(fieldName)
	if err != nil {
		t.Fatalf("FormFile returned error: %v", err)
	}
	return file, header
}

func TestIssueCapabilityThenUploadRoundTrips(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	raw, err := svc.IssueCapability(ctx, "session-1")
	if err != nil {
		t.Fatalf("IssueCapability returned error: %v", err)
	}

	file, header := buildUploadRequest(t, "file", "recording.webm", "some bytes of media")
	defer file.Close()

	result, err := svc.Upload(ctx, raw, header, file)
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if result.Bytes != int64(len("some bytes of media")) {
		t.Fatalf("unexpected byte count: %d", result.Bytes)
	}
	if result.Checksum == "" {
		t.Fatal("expected a non-empty checksum")
	}

	written, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("reading uploaded file: %v", err)
	}
	if string(written) != "some bytes of media" {
		t.Fatalf("unexpected file contents: %q", written)
	}
}

func TestUploadRejectsSecondUseOfSameCapability(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	raw, err := svc.IssueCapability(ctx, "session-1")
	if err != nil {
		t.Fatalf("IssueCapability returned error: %v", err)
	}

	file1, header1 := buildUploadRequest(t, "file", "first.webm", "first")
	defer file1.Close()
	if _, err := svc.Upload(ctx, raw, header1, file1); err != nil {
		t.Fatalf("first Upload returned error: %v", err)
	}

	file2, header2 := buildUploadRequest(t, "file", "second.webm", "second")
	defer file2.Close()
	if _, err := svc.Upload(ctx, raw, header2, file2); err == nil {
		t.Fatal("expected the second upload with the same capability to fail")
	}
}

func TestUploadRejectsTokenForWrongAudience(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	otherAuth := token.New("test-secret")
	raw, _, err := otherAuth.Mint(token.MintParams{
		Audience:  token.AudienceIST,
		SessionID: "session-1",
		TTL:       token.TTLIST,
	})
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	file, header := buildUploadRequest(t, "file", "recording.webm", "data")
	defer file.Close()

	if _, err := svc.Upload(ctx, raw, header, file); err == nil {
		t.Fatal("expected upload to reject a non-upt token")
	}
}
