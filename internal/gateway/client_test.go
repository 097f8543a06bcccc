package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gorilla/websocket"
)

func TestParseUserAgentFallsBackOnEmpty(t *testing.T) {
	got := ParseUserAgent("")
	want := ClientProperties{Browser: "Chrome", Version: "0.0", Device: "", OS: "Windows"}
	if got != want {
		t.Fatalf("expected the generic desktop fallback, got %#v", got)
	}
}

func TestParseUserAgentExtractsChromeVersionAndOS(t *testing.T) {
	ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.5993.88 Safari/537.36"
	got := ParseUserAgent(ua)
	if got.OS != "Mac OS X" {
		t.Fatalf("expected Mac OS X, got %q", got.OS)
	}
	if got.Version != "118.0" {
		t.Fatalf("expected major.minor 118.0, got %q", got.Version)
	}
}

func TestParseUserAgentDetectsLinux(t *testing.T) {
	got := ParseUserAgent("Mozilla/5.0 (X11; Linux x86_64) Chrome/100.0.4896.60")
	if got.OS != "Linux" {
		t.Fatalf("expected Linux, got %q", got.OS)
	}
}

func TestHandleFailureClearsSessionOnNonResumeCodes(t *testing.T) {
	c := &Client{}
	if err := c.handleFailure(4004, "authentication failed"); err == nil {
		t.Fatal("expected handleFailure to return a descriptive error")
	}
	if c.sessionID.Load() != "" {
		t.Fatalf("expected session id cleared, got %v", c.sessionID.Load())
	}
	if c.hasSeq.Load() {
		t.Fatal("expected hasSeq cleared on a non-resumable close code")
	}
}

func TestHandleFailureKeepsSessionOnResumeMarker(t *testing.T) {
	c := &Client{}
	c.sessionID.Store("sess1")
	c.hasSeq.Store(true)

	if err := c.handleFailure(CloseCodeResumeMarker, "resume"); err == nil {
		t.Fatal("expected handleFailure to still return an error to the caller")
	}
	if c.sessionID.Load() != "sess1" {
		t.Fatalf("expected session id preserved across a resume-eligible close, got %v", c.sessionID.Load())
	}
	if !c.hasSeq.Load() {
		t.Fatal("expected sequence tracking preserved across a resume-eligible close")
	}
}

func TestClassifyFailureRecommendsImmediateResumeOnResumeMarker(t *testing.T) {
	c := &Client{}
	err := fmt.Errorf("gateway: closed code=%d reason=resume", CloseCodeResumeMarker)
	reconnect, wait := c.classifyFailure(err)
	if !reconnect || wait != 0 {
		t.Fatalf("expected immediate resume, got reconnect=%v wait=%v", reconnect, wait)
	}
}

func TestClassifyFailureBacksOffOnOtherErrors(t *testing.T) {
	c := &Client{}
	reconnect, wait := c.classifyFailure(errors.New("boom"))
	if reconnect {
		t.Fatal("expected a generic failure not to request an immediate resume")
	}
	if wait != newConnectBackoff {
		t.Fatalf("expected the standard backoff, got %v", wait)
	}
}

func TestClassifyCloseErrorUnwrapsWebsocketCloseError(t *testing.T) {
	code, reason := classifyCloseError(&websocket.CloseError{Code: 4000, Text: "bye"})
	if code != 4000 || reason != "bye" {
		t.Fatalf("unexpected classification: code=%d reason=%q", code, reason)
	}
}

func TestClassifyCloseErrorFallsBackToExceptionCode(t *testing.T) {
	code, _ := classifyCloseError(errors.New("connection reset"))
	if code != CloseCodeException {
		t.Fatalf("expected fallback exception code, got %d", code)
	}
}

func TestShouldDisableAfterRepeatedFailuresInWindow(t *testing.T) {
	c := &Client{}
	for i := 0; i < maxFailuresInWindow; i++ {
		c.recordFailure()
	}
	if c.shouldDisable() {
		t.Fatal("expected not to disable at exactly the threshold")
	}
	c.recordFailure()
	if !c.shouldDisable() {
		t.Fatal("expected to disable once failures exceed the threshold")
	}
	c.clearFailures()
	if c.shouldDisable() {
		t.Fatal("expected clearFailures to reset the window")
	}
}
