// Package mockinterp is an in-memory interpreter that speaks the bridge
// protocol. It resolves commands against a local program store instead of a
// real backend, with injectable error scenarios and artificial delay, so
// the codec and pool logic can be exercised without the external
// dependency.
package mockinterp

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/bridgectl/internal/protocol"
)

// ErrorScenario injects one failure mode: requests whose command matches
// (or any request, for "*") fail with Kind/Message at the given
// probability.
type ErrorScenario struct {
	Command     string
	Probability float64
	Kind        string
	Message     string
}

// Config fixes the double's behavior at construction; there is no runtime
// patching of handler paths.
type Config struct {
	ResponseDelay time.Duration
	MaxPrograms   int
	Scenarios     []ErrorScenario
	// Rand drives scenario triggers. Nil seeds from the clock.
	Rand *rand.Rand
}

func DefaultConfig() Config {
	return Config{MaxPrograms: 100}
}

// Counters reports double-side traffic totals.
type Counters struct {
	RequestsReceived uint64
	ResponsesSent    uint64
	ErrorsTriggered  uint64
}

type fieldDef struct {
	Name string
}

type signature struct {
	Inputs  []fieldDef
	Outputs []fieldDef
}

type program struct {
	ID             string
	Signature      signature
	CreatedAt      time.Time
	ExecutionCount uint64
	LastExecuted   time.Time
}

// Interp is the test double. One instance serves one connection.
type Interp struct {
	cfg Config

	mu        sync.Mutex
	programs  map[string]*program
	counters  Counters
	errors    uint64
	startedAt time.Time
	rng       *rand.Rand
	stopping  bool
}

func New(cfg Config) *Interp {
	if cfg.MaxPrograms <= 0 {
		cfg.MaxPrograms = DefaultConfig().MaxPrograms
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Interp{
		cfg:       cfg,
		programs:  make(map[string]*program),
		startedAt: time.Now(),
		rng:       rng,
	}
}

// CountersSnapshot returns current traffic totals.
func (i *Interp) CountersSnapshot() Counters {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.counters
}

// Handle resolves one request into its response. Unknown commands return a
// structured error, never a crash.
func (i *Interp) Handle(req protocol.Request) protocol.Response {
	i.mu.Lock()
	i.counters.RequestsReceived++
	triggered := i.matchScenarioLocked(req.Command)
	i.mu.Unlock()

	if i.cfg.ResponseDelay > 0 {
		time.Sleep(i.cfg.ResponseDelay)
	}

	if triggered != nil {
		i.mu.Lock()
		i.counters.ErrorsTriggered++
		i.counters.ResponsesSent++
		i.errors++
		i.mu.Unlock()
		return protocol.ErrorResponse(req.ID, fmt.Sprintf("%s: %s", triggered.Kind, triggered.Message))
	}

	result, err := i.dispatch(req.Command, req.Args)

	i.mu.Lock()
	i.counters.ResponsesSent++
	if err != nil {
		i.errors++
	}
	i.mu.Unlock()

	if err != nil {
		return protocol.ErrorResponse(req.ID, err.Error())
	}
	return protocol.OKResponse(req.ID, result)
}

func (i *Interp) matchScenarioLocked(command string) *ErrorScenario {
	for idx := range i.cfg.Scenarios {
		sc := &i.cfg.Scenarios[idx]
		if sc.Command != "*" && sc.Command != command {
			continue
		}
		if i.rng.Float64() < sc.Probability {
			return sc
		}
	}
	return nil
}

func (i *Interp) dispatch(command string, args map[string]any) (any, error) {
	switch command {
	case "ping":
		return i.ping(args)
	case "create_program":
		return i.createProgram(args)
	case "execute_program":
		return i.executeProgram(args)
	case "list_programs":
		return i.listPrograms()
	case "delete_program":
		return i.deleteProgram(args)
	case "get_program_info":
		return i.getProgramInfo(args)
	case "get_stats":
		return i.getStats()
	case "reset_state":
		return i.resetState()
	case "cleanup":
		return i.cleanup()
	case "shutdown":
		return i.shutdown()
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (i *Interp) ping(args map[string]any) (any, error) {
	result := map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(i.startedAt).Seconds(),
	}
	if echo, ok := args["echo"]; ok {
		result["echo"] = echo
	}
	return result, nil
}

func (i *Interp) createProgram(args map[string]any) (any, error) {
	sig, err := parseSignature(args["signature"])
	if err != nil {
		return nil, err
	}

	id, _ := args["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.programs[id]; exists {
		return nil, fmt.Errorf("program already exists: %s", id)
	}
	if len(i.programs) >= i.cfg.MaxPrograms {
		return nil, fmt.Errorf("program limit reached (%d)", i.cfg.MaxPrograms)
	}
	i.programs[id] = &program{ID: id, Signature: sig, CreatedAt: time.Now()}
	return map[string]any{"program_id": id}, nil
}

func (i *Interp) executeProgram(args map[string]any) (any, error) {
	id, _ := args["program_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("program_id is required")
	}
	inputs, _ := args["inputs"].(map[string]any)

	i.mu.Lock()
	p, ok := i.programs[id]
	if !ok {
		i.mu.Unlock()
		return nil, fmt.Errorf("program not found: %s", id)
	}
	p.ExecutionCount++
	p.LastExecuted = time.Now()
	outputs := p.Signature.Outputs
	i.mu.Unlock()

	result := make(map[string]any, len(outputs))
	for _, out := range outputs {
		result[out.Name] = mockOutput(id, out.Name, inputs)
	}
	return map[string]any{"program_id": id, "outputs": result}, nil
}

func (i *Interp) listPrograms() (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ids := make([]string, 0, len(i.programs))
	for id := range i.programs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	summaries := make([]any, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, i.programSummaryLocked(i.programs[id]))
	}
	return map[string]any{"programs": summaries, "count": len(ids)}, nil
}

func (i *Interp) deleteProgram(args map[string]any) (any, error) {
	id, _ := args["program_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("program_id is required")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.programs[id]; !ok {
		return nil, fmt.Errorf("program not found: %s", id)
	}
	delete(i.programs, id)
	return map[string]any{"deleted": id}, nil
}

func (i *Interp) getProgramInfo(args map[string]any) (any, error) {
	id, _ := args["program_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("program_id is required")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.programs[id]
	if !ok {
		return nil, fmt.Errorf("program not found: %s", id)
	}
	return i.programSummaryLocked(p), nil
}

func (i *Interp) programSummaryLocked(p *program) map[string]any {
	inputs := make([]any, 0, len(p.Signature.Inputs))
	for _, f := range p.Signature.Inputs {
		inputs = append(inputs, f.Name)
	}
	outputs := make([]any, 0, len(p.Signature.Outputs))
	for _, f := range p.Signature.Outputs {
		outputs = append(outputs, f.Name)
	}
	summary := map[string]any{
		"program_id":      p.ID,
		"inputs":          inputs,
		"outputs":         outputs,
		"created_at":      p.CreatedAt.Unix(),
		"execution_count": p.ExecutionCount,
	}
	if !p.LastExecuted.IsZero() {
		summary["last_executed"] = p.LastExecuted.Unix()
	}
	return summary
}

func (i *Interp) getStats() (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return map[string]any{
		"command_count":     i.counters.RequestsReceived,
		"error_count":       i.errors,
		"errors_triggered":  i.counters.ErrorsTriggered,
		"responses_sent":    i.counters.ResponsesSent,
		"programs":          len(i.programs),
		"max_programs":      i.cfg.MaxPrograms,
		"uptime_seconds":    time.Since(i.startedAt).Seconds(),
	}, nil
}

func (i *Interp) resetState() (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	cleared := len(i.programs)
	i.programs = make(map[string]*program)
	return map[string]any{"status": "reset", "cleared": cleared}, nil
}

func (i *Interp) cleanup() (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	cleared := len(i.programs)
	i.programs = make(map[string]*program)
	return map[string]any{"status": "cleaned", "cleared": cleared}, nil
}

func (i *Interp) shutdown() (any, error) {
	i.mu.Lock()
	i.stopping = true
	i.mu.Unlock()
	return map[string]any{"status": "shutting_down"}, nil
}

func (i *Interp) stopRequested() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stopping
}

func parseSignature(raw any) (signature, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return signature{}, fmt.Errorf("signature payload is required")
	}
	inputs, err := parseFieldDefs(m["inputs"])
	if err != nil {
		return signature{}, fmt.Errorf("signature inputs: %w", err)
	}
	outputs, err := parseFieldDefs(m["outputs"])
	if err != nil {
		return signature{}, fmt.Errorf("signature outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return signature{}, fmt.Errorf("signature must declare inputs and outputs")
	}
	return signature{Inputs: inputs, Outputs: outputs}, nil
}

func parseFieldDefs(raw any) ([]fieldDef, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a field list")
	}
	out := make([]fieldDef, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field definition must be an object")
		}
		name, _ := m["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("field definition missing name")
		}
		out = append(out, fieldDef{Name: name})
	}
	return out, nil
}

// mockOutput synthesizes a deterministic value for one declared output
// field. encoding/json sorts map keys, so the canonical form is stable and
// identical (program, field, inputs) always hash the same.
func mockOutput(programID, field string, inputs map[string]any) string {
	canonical, err := json.Marshal(inputs)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%v", inputs))
	}
	h := fnv.New64a()
	h.Write([]byte(programID))
	h.Write([]byte{0})
	h.Write([]byte(field))
	h.Write([]byte{0})
	h.Write(canonical)
	return fmt.Sprintf("%s_%016x", field, h.Sum64())
}
