// ABOUTME: Tests for identity propagation through context
// ABOUTME: Covers round trip and missing-value behaviour

package auth

import (
	"context"
	"testing"
)

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Fatal("FromContext() on empty context should be nil")
	}

	id := &Identity{Subject: "ops", Method: MethodJWT}
	ctx := WithIdentity(context.Background(), id)
	if got := FromContext(ctx); got != id {
		t.Errorf("FromContext() = %+v, want %+v", got, id)
	}
}
