package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func echoSpec(name string, required ...string) Spec {
	props := map[string]any{}
	for _, r := range required {
		props[r] = map[string]any{"type": "string"}
	}
	return Spec{
		Name:        name,
		Description: "echoes its arguments",
		Parameters:  map[string]any{"type": "object", "properties": props, "required": required},
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
			return args, nil
		}),
	}
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoSpec("echo")); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := r.Register(echoSpec("echo"))
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("second Register error = %v, want ErrDuplicateTool", err)
	}
}

func TestRegister_Invalid(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Spec{Handler: echoSpec("x").Handler}); err == nil {
		t.Error("empty name should be rejected")
	}
	if err := r.Register(Spec{Name: "nohandler"}); err == nil {
		t.Error("nil handler should be rejected")
	}
}

func TestDefinitions_SortedWithoutHandlers(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(echoSpec(n, "q")); err != nil {
			t.Fatal(err)
		}
	}

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("Definitions() len = %d, want 3", len(defs))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if defs[i].Name != want {
			t.Errorf("defs[%d].Name = %q, want %q", i, defs[i].Name, want)
		}
	}
	if got := defs[0].Required(); len(got) != 1 || got[0] != "q" {
		t.Errorf("Required() = %v, want [q]", got)
	}

	if _, err := json.Marshal(defs); err != nil {
		t.Fatalf("marshal definitions: %v", err)
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nonexistent_tool", map[string]any{})

	if res.Status != StatusError {
		t.Fatalf("Status = %q, want error", res.Status)
	}
	if res.Error != "Tool 'nonexistent_tool' not found" {
		t.Errorf("Error = %q", res.Error)
	}
	var unknown *ErrUnknownTool
	if !errors.As(res.Err, &unknown) {
		t.Errorf("Err = %v, want *ErrUnknownTool", res.Err)
	}

	raw, _ := json.Marshal(res)
	if string(raw) != `{"status":"error","error":"Tool 'nonexistent_tool' not found"}` {
		t.Errorf("wire = %s", raw)
	}
}

func TestExecute_UnknownToolHint(t *testing.T) {
	r := NewRegistry()
	r.Register(echoSpec("generate_kpi_dashboard"))
	r.Register(echoSpec("analyze_metrics"))

	res := r.Execute(context.Background(), "kpi_dashboard", nil)
	if res.Hint != "generate_kpi_dashboard" {
		t.Errorf("Hint = %q, want generate_kpi_dashboard", res.Hint)
	}
	if res.Error != "Tool 'kpi_dashboard' not found" {
		t.Errorf("Error = %q", res.Error)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"status":"error","error":"Tool 'kpi_dashboard' not found","hint":"generate_kpi_dashboard"}`
	if string(raw) != want {
		t.Errorf("wire = %s, want %s", raw, want)
	}
}

func TestExecute_MissingParameter(t *testing.T) {
	r := NewRegistry()
	r.Register(echoSpec("analyze_metrics", "data_source", "metrics"))

	res := r.Execute(context.Background(), "analyze_metrics", map[string]any{"data_source": "pos"})
	if res.OK() {
		t.Fatal("expected error result")
	}
	if res.Error != "Required parameter 'metrics' missing for tool 'analyze_metrics'" {
		t.Errorf("Error = %q", res.Error)
	}
	var missing *ErrMissingParameter
	if !errors.As(res.Err, &missing) || missing.Param != "metrics" {
		t.Errorf("Err = %v, want *ErrMissingParameter for metrics", res.Err)
	}
}

// Validation is presence-only: a wrongly typed value reaches the handler.
func TestExecute_PresenceOnlyValidation(t *testing.T) {
	r := NewRegistry()
	r.Register(echoSpec("analyze_metrics", "metrics"))

	res := r.Execute(context.Background(), "analyze_metrics", map[string]any{"metrics": 42.0})
	if !res.OK() {
		t.Fatalf("Status = %q (%s), want success", res.Status, res.Error)
	}
	if got := res.Payload.(map[string]any)["metrics"]; got != 42.0 {
		t.Errorf("handler saw metrics = %v, want 42", got)
	}
}

func TestExecute_HandlerError(t *testing.T) {
	r := NewRegistry()
	r.Register(Spec{Name: "fails", Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("disk full")
	})})

	res := r.Execute(context.Background(), "fails", nil)
	if res.Status != StatusError || res.Error != "disk full" {
		t.Errorf("result = %+v, want error 'disk full'", res)
	}
}

func TestExecute_HandlerPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(Spec{Name: "panics", Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		var m map[string]int
		m["boom"]++
		return nil, nil
	})})

	res := r.Execute(context.Background(), "panics", nil)
	var p *ErrToolPanic
	if res.OK() || !errors.As(res.Err, &p) {
		t.Errorf("result = %+v, want recovered panic", res)
	}
}

func TestExecute_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	r := NewRegistry(WithTimeout(20 * time.Millisecond))
	r.Register(Spec{Name: "stuck", Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		<-release
		return "late", nil
	})})

	res := r.Execute(context.Background(), "stuck", nil)
	var to *ErrToolTimeout
	if !errors.As(res.Err, &to) {
		t.Fatalf("result = %+v, want timeout", res)
	}
	if res.Error != "Tool 'stuck' timed out after 20ms" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestExecute_CallerDeadlineIsNotToolTimeout(t *testing.T) {
	r := NewRegistry(WithTimeout(time.Minute))
	r.Register(Spec{Name: "waits", Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := r.Execute(ctx, "waits", nil)

	var to *ErrToolTimeout
	if errors.As(res.Err, &to) {
		t.Fatalf("Err = %v, caller deadline reported as tool timeout", res.Err)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want context.DeadlineExceeded", res.Err)
	}
}

func TestExecute_CallerCancelled(t *testing.T) {
	r := NewRegistry(WithTimeout(0))
	r.Register(Spec{Name: "waits", Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Execute(ctx, "waits", nil)
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
}

func TestExecute_Success(t *testing.T) {
	r := NewRegistry()
	r.Register(Spec{Name: "answer", Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"value": 42}, nil
	})})

	res := r.Execute(context.Background(), "answer", nil)
	if !res.OK() || res.Tool != "answer" {
		t.Fatalf("result = %+v", res)
	}
	raw, _ := json.Marshal(res)
	if string(raw) != `{"status":"success","result":{"value":42}}` {
		t.Errorf("wire = %s", raw)
	}

	var back Result
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.OK() || back.Payload.(map[string]any)["value"] != 42.0 {
		t.Errorf("decoded = %+v", back)
	}
}
