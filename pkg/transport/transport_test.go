package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tiancaiamao/acp/pkg/logger"
)

func testLogger() *logger.Logger {
	log, _ := logger.NewLogger(&logger.Config{Level: logger.ERROR, Console: false})
	return log
}

// cat echoes stdin to stdout line by line, which is exactly the loopback
// a wire test needs.
func catTransport() *Transport {
	return New(Config{Command: "cat"}, testLogger())
}

func TestEchoRoundTrip(t *testing.T) {
	tr := catTransport()

	got := make(chan json.RawMessage, 10)
	tr.SetMessageHandler(func(msg json.RawMessage) { got <- msg })

	if err := tr.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer tr.Stop()

	if err := tr.Send([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case msg := <-got:
		var m map[string]any
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Fatalf("echoed message is not JSON: %v", err)
		}
		if m["method"] != "ping" {
			t.Errorf("echo = %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo from the subprocess")
	}
}

func TestSendFramesOneDocumentPerLine(t *testing.T) {
	// The agent reports the byte length of every line it reads,
	// blank lines included. Each Send must arrive as exactly one
	// line holding exactly the payload.
	script := `while IFS= read -r line; do printf '{"jsonrpc":"2.0","method":"line","params":{"n":%d}}\n' "${#line}"; done`
	tr := New(Config{Command: "sh", Args: []string{"-c", script}}, testLogger())

	got := make(chan int, 10)
	tr.SetMessageHandler(func(msg json.RawMessage) {
		var m struct {
			Params struct {
				N int `json:"n"`
			} `json:"params"`
		}
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Errorf("report is not JSON: %v", err)
			return
		}
		got <- m.Params.N
	})
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	first := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	second := []byte(`{"jsonrpc":"2.0","id":2,"method":"pong"}`)
	if err := tr.Send(first); err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(second); err != nil {
		t.Fatal(err)
	}

	for _, want := range []int{len(first), len(second)} {
		select {
		case n := <-got:
			if n != want {
				t.Errorf("agent read a line of %d bytes, want %d", n, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("agent never reported the line")
		}
	}
	select {
	case n := <-got:
		t.Errorf("agent read an extra line of %d bytes", n)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMalformedLinesDropped(t *testing.T) {
	tr := catTransport()

	got := make(chan json.RawMessage, 10)
	tr.SetMessageHandler(func(msg json.RawMessage) { got <- msg })

	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	// Invalid JSON, then a valid line; only the valid one must arrive.
	if err := tr.Send([]byte(`this is not json`)); err != nil {
		t.Fatal(err)
	}
	if err := tr.Send([]byte(`{"ok":true}`)); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-got:
		var m map[string]any
		if err := json.Unmarshal(msg, &m); err != nil || m["ok"] != true {
			t.Errorf("unexpected message: %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid line never delivered")
	}

	select {
	case msg := <-got:
		t.Errorf("extra message delivered: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendWithoutStart(t *testing.T) {
	tr := catTransport()
	if err := tr.Send([]byte(`{}`)); err == nil {
		t.Error("send on a stopped transport must fail")
	}
}

func TestDoubleStart(t *testing.T) {
	tr := catTransport()
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	if err := tr.Start(); err == nil {
		t.Error("second start must fail while the process runs")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	tr := catTransport()
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	tr.Stop()
	tr.Stop() // must not panic or hang

	if tr.Running() {
		t.Error("transport still running after stop")
	}
}

func TestExitHandlerOnCrash(t *testing.T) {
	tr := New(Config{Command: "sh", Args: []string{"-c", "exit 3"}}, testLogger())

	exited := make(chan error, 1)
	tr.SetExitHandler(func(err error) { exited <- err })

	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-exited:
		if err == nil {
			t.Error("expected a non-nil exit error for status 3")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("exit handler never called")
	}
	if tr.Running() {
		t.Error("transport still marked running after exit")
	}
}

func TestExitHandlerNotCalledOnStop(t *testing.T) {
	tr := catTransport()

	exited := make(chan error, 1)
	tr.SetExitHandler(func(err error) { exited <- err })

	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	tr.Stop()

	select {
	case <-exited:
		t.Error("deliberate stop must not fire the exit handler")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStartMissingCommand(t *testing.T) {
	tr := New(Config{Command: "/no/such/binary"}, testLogger())
	if err := tr.Start(); err == nil {
		t.Error("start must fail for a missing binary")
	}
}

func TestEnvOverlay(t *testing.T) {
	tr := New(Config{
		Command: "sh",
		Args:    []string{"-c", `printf '{"env":"%s"}\n' "$ACP_TEST_VAR"`},
		Env:     []string{"ACP_TEST_VAR=hello"},
	}, testLogger())

	got := make(chan json.RawMessage, 1)
	tr.SetMessageHandler(func(msg json.RawMessage) { got <- msg })

	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	select {
	case msg := <-got:
		var m map[string]string
		if err := json.Unmarshal(msg, &m); err != nil || m["env"] != "hello" {
			t.Errorf("message = %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no output from the subprocess")
	}
}
