package providers

import (
	"context"
	"errors"
	"testing"

	"docrag/internal/util"
)

func TestGroqProviderRequiresKey(t *testing.T) {
	if _, err := NewGroqProvider("", ""); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestGroqProviderIsChatOnly(t *testing.T) {
	p, err := NewGroqProvider("gsk-test", "")
	if err != nil {
		t.Fatalf("new groq: %v", err)
	}
	if got := p.Chat().Model(); got != "groq/"+DefaultGroqModel {
		t.Fatalf("unexpected chat model %q", got)
	}
	_, err = p.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, util.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
