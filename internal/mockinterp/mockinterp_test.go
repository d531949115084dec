package mockinterp

import (
	"io"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/protocol/frame"
)

func createTestProgram(t *testing.T, i *Interp, id string) {
	t.Helper()
	resp := i.Handle(protocol.Request{
		ID:      1,
		Command: "create_program",
		Args: map[string]any{
			"id": id,
			"signature": map[string]any{
				"inputs":  []any{map[string]any{"name": "question"}},
				"outputs": []any{map[string]any{"name": "answer"}},
			},
		},
	})
	if resp.Status != protocol.StatusOK {
		t.Fatalf("create_program failed: %s", resp.Err)
	}
}

func TestPing(t *testing.T) {
	i := New(DefaultConfig())
	resp := i.Handle(protocol.Request{ID: 1, Command: "ping", Args: map[string]any{}})
	if resp.Status != protocol.StatusOK || resp.RequestID != 1 {
		t.Fatalf("unexpected ping response: %+v", resp)
	}
}

func TestUnknownCommandIsStructuredError(t *testing.T) {
	i := New(DefaultConfig())
	resp := i.Handle(protocol.Request{ID: 2, Command: "frobnicate", Args: map[string]any{}})
	if resp.Status != protocol.StatusError {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if !strings.Contains(resp.Err, "unknown command: frobnicate") {
		t.Fatalf("unexpected error text: %q", resp.Err)
	}
}

func TestExecuteProgramIsDeterministic(t *testing.T) {
	i := New(DefaultConfig())
	createTestProgram(t, i, "prog-1")

	exec := func() any {
		resp := i.Handle(protocol.Request{
			ID:      3,
			Command: "execute_program",
			Args: map[string]any{
				"program_id": "prog-1",
				"inputs":     map[string]any{"question": "why", "depth": float64(2)},
			},
		})
		if resp.Status != protocol.StatusOK {
			t.Fatalf("execute_program failed: %s", resp.Err)
		}
		return resp.Result
	}

	first := exec()
	second := exec()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different outputs: %v vs %v", first, second)
	}

	// Different inputs must diverge.
	resp := i.Handle(protocol.Request{
		ID:      4,
		Command: "execute_program",
		Args: map[string]any{
			"program_id": "prog-1",
			"inputs":     map[string]any{"question": "how"},
		},
	})
	if reflect.DeepEqual(first, resp.Result) {
		t.Fatal("different inputs produced identical outputs")
	}
}

func TestExecuteSynthesizesDeclaredOutputs(t *testing.T) {
	i := New(DefaultConfig())
	resp := i.Handle(protocol.Request{
		ID:      1,
		Command: "create_program",
		Args: map[string]any{
			"id": "multi",
			"signature": map[string]any{
				"inputs":  []any{map[string]any{"name": "text"}},
				"outputs": []any{map[string]any{"name": "summary"}, map[string]any{"name": "sentiment"}},
			},
		},
	})
	if resp.Status != protocol.StatusOK {
		t.Fatalf("create failed: %s", resp.Err)
	}
	resp = i.Handle(protocol.Request{
		ID:      2,
		Command: "execute_program",
		Args:    map[string]any{"program_id": "multi", "inputs": map[string]any{"text": "hello"}},
	})
	outputs := resp.Result.(map[string]any)["outputs"].(map[string]any)
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %v", outputs)
	}
	for _, field := range []string{"summary", "sentiment"} {
		v, ok := outputs[field].(string)
		if !ok || !strings.HasPrefix(v, field+"_") {
			t.Fatalf("output %s malformed: %v", field, outputs[field])
		}
	}
}

func TestCreateProgramRequiresSignature(t *testing.T) {
	i := New(DefaultConfig())
	resp := i.Handle(protocol.Request{ID: 1, Command: "create_program", Args: map[string]any{"id": "x"}})
	if resp.Status != protocol.StatusError {
		t.Fatalf("expected error for missing signature, got %+v", resp)
	}
}

func TestMaxProgramsLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPrograms = 2
	i := New(cfg)
	createTestProgram(t, i, "a")
	createTestProgram(t, i, "b")
	resp := i.Handle(protocol.Request{
		ID:      9,
		Command: "create_program",
		Args: map[string]any{
			"id": "c",
			"signature": map[string]any{
				"inputs":  []any{map[string]any{"name": "q"}},
				"outputs": []any{map[string]any{"name": "a"}},
			},
		},
	})
	if resp.Status != protocol.StatusError || !strings.Contains(resp.Err, "program limit reached") {
		t.Fatalf("expected limit error, got %+v", resp)
	}
}

func TestErrorScenarioAlwaysTriggers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scenarios = []ErrorScenario{
		{Command: "ping", Probability: 1.0, Kind: "timeout", Message: "injected"},
	}
	cfg.Rand = rand.New(rand.NewSource(1))
	i := New(cfg)

	resp := i.Handle(protocol.Request{ID: 1, Command: "ping", Args: map[string]any{}})
	if resp.Status != protocol.StatusError || !strings.Contains(resp.Err, "timeout: injected") {
		t.Fatalf("scenario did not trigger: %+v", resp)
	}
	// Non-matching command is unaffected.
	createTestProgram(t, i, "p")
	if got := i.CountersSnapshot().ErrorsTriggered; got != 1 {
		t.Fatalf("expected 1 triggered error, got %d", got)
	}
}

func TestWildcardScenarioNeverTriggersAtZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scenarios = []ErrorScenario{{Command: "*", Probability: 0, Kind: "x", Message: "y"}}
	cfg.Rand = rand.New(rand.NewSource(1))
	i := New(cfg)
	for n := 0; n < 50; n++ {
		resp := i.Handle(protocol.Request{ID: uint64(n), Command: "ping", Args: map[string]any{}})
		if resp.Status != protocol.StatusOK {
			t.Fatalf("zero-probability scenario triggered: %+v", resp)
		}
	}
}

func TestLifecycleCommands(t *testing.T) {
	i := New(DefaultConfig())
	createTestProgram(t, i, "p1")

	resp := i.Handle(protocol.Request{ID: 1, Command: "get_program_info", Args: map[string]any{"program_id": "p1"}})
	if resp.Status != protocol.StatusOK {
		t.Fatalf("get_program_info: %s", resp.Err)
	}
	info := resp.Result.(map[string]any)
	if info["program_id"] != "p1" {
		t.Fatalf("unexpected info: %+v", info)
	}

	resp = i.Handle(protocol.Request{ID: 2, Command: "list_programs", Args: map[string]any{}})
	if resp.Result.(map[string]any)["count"] != 1 {
		t.Fatalf("expected one program: %+v", resp.Result)
	}

	resp = i.Handle(protocol.Request{ID: 3, Command: "delete_program", Args: map[string]any{"program_id": "p1"}})
	if resp.Status != protocol.StatusOK {
		t.Fatalf("delete_program: %s", resp.Err)
	}

	createTestProgram(t, i, "p2")
	resp = i.Handle(protocol.Request{ID: 4, Command: "reset_state", Args: map[string]any{}})
	if resp.Status != protocol.StatusOK {
		t.Fatalf("reset_state: %s", resp.Err)
	}
	resp = i.Handle(protocol.Request{ID: 5, Command: "get_stats", Args: map[string]any{}})
	stats := resp.Result.(map[string]any)
	if stats["programs"] != 0 {
		t.Fatalf("reset_state left programs: %+v", stats)
	}
}

func TestCleanupClearsProgramStore(t *testing.T) {
	i := New(DefaultConfig())
	createTestProgram(t, i, "p1")
	createTestProgram(t, i, "p2")

	resp := i.Handle(protocol.Request{ID: 1, Command: "cleanup", Args: map[string]any{}})
	if resp.Status != protocol.StatusOK {
		t.Fatalf("cleanup: %s", resp.Err)
	}
	if resp.Result.(map[string]any)["cleared"] != 2 {
		t.Fatalf("expected 2 cleared, got %+v", resp.Result)
	}

	resp = i.Handle(protocol.Request{ID: 2, Command: "list_programs", Args: map[string]any{}})
	if resp.Result.(map[string]any)["count"] != 0 {
		t.Fatalf("cleanup left programs in the store: %+v", resp.Result)
	}
}

func TestServeLoop(t *testing.T) {
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	i := New(DefaultConfig())
	done := make(chan error, 1)
	go func() { done <- i.Serve(serverR, serverW) }()

	limits := frame.DefaultLimits()
	if err := protocol.WriteRequest(clientW, protocol.Request{ID: 1, Command: "ping", Args: map[string]any{}}, limits); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	msg, err := protocol.ReadMessage(clientR, limits)
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	resp, ok := msg.(*protocol.Response)
	if !ok || resp.RequestID != 1 || resp.Status != protocol.StatusOK {
		t.Fatalf("unexpected response: %#v", msg)
	}

	// Malformed body carrying an id still gets a correlated error response.
	if err := frame.WriteFrame(clientW, []byte(`{"id": 77, "command": 5}`), limits); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	msg, err = protocol.ReadMessage(clientR, limits)
	if err != nil {
		t.Fatalf("read malformed reply: %v", err)
	}
	resp = msg.(*protocol.Response)
	if resp.RequestID != 77 || resp.Status != protocol.StatusError {
		t.Fatalf("expected correlated error for id 77, got %+v", resp)
	}

	// Shutdown acks and ends the loop.
	if err := protocol.WriteRequest(clientW, protocol.Request{ID: 2, Command: "shutdown", Args: map[string]any{}}, limits); err != nil {
		t.Fatalf("write shutdown: %v", err)
	}
	if _, err := protocol.ReadMessage(clientR, limits); err != nil {
		t.Fatalf("read shutdown ack: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve returned error: %v", err)
	}
}
