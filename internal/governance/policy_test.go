package governance

import (
	"context"
	"testing"

	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	req1 := Request{Kind: "pointer"}
	res1, err := engine.Evaluate(ctx, req1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny by kind
	engine.DenyKind("script")
	req2 := Request{Kind: "script", Payload: "ls"}
	res2, err := engine.Evaluate(ctx, req2)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestDefaultPolicyEngine_DenyPayload(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	if err := engine.DenyPayload(`rm\s+-rf`); err != nil {
		t.Fatalf("DenyPayload failed: %v", err)
	}
	if err := engine.DenyPayload(`(`); err == nil {
		t.Error("Expected error for invalid regex")
	}

	res, err := engine.Evaluate(ctx, Request{Kind: "script", Payload: "rm -rf /tmp/scratch"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res.Effect)
	}

	res, err = engine.Evaluate(ctx, Request{Kind: "text", Payload: "hello world"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res.Effect)
	}
}

func TestCommandGate_Check(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	if err := engine.DenyPayload(`shutdown`); err != nil {
		t.Fatal(err)
	}
	gate := &CommandGate{Engine: engine}
	ctx := context.Background()

	cmd := surface.Command{Kind: surface.KindPointer, Action: "left_click", X: 10, Y: 20}
	if err := gate.Check(ctx, "chat1", cmd); err != nil {
		t.Errorf("Expected click to pass, got %v", err)
	}

	bad := surface.Command{Kind: surface.KindScript, Script: "shutdown -h now"}
	if err := gate.Check(ctx, "chat1", bad); err == nil {
		t.Error("Expected shutdown script to be blocked")
	}
}
