package mcp_test

import (
	"errors"
	"testing"

	"github.com/haldor-dev/go-mcp"
)

func TestRPCError_Error(t *testing.T) {
	err := mcp.NewRPCError(mcp.CodeInvalidParams, "bad params")
	want := "mcp: code -32602: bad params"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAsRPCError_PassesThroughRPCError(t *testing.T) {
	orig := mcp.NewRPCError(mcp.CodeMethodNotFound, "nope")
	got := mcp.AsRPCError(orig)
	if got != orig {
		t.Errorf("AsRPCError() = %v, want the same *RPCError", got)
	}
}

func TestAsRPCError_WrapsPlainError(t *testing.T) {
	got := mcp.AsRPCError(errors.New("boom"))
	if got.Code != mcp.CodeInternalError {
		t.Errorf("Code = %d, want %d", got.Code, mcp.CodeInternalError)
	}
	if got.Message != "boom" {
		t.Errorf("Message = %q, want boom", got.Message)
	}
}

func TestAsRPCError_Nil(t *testing.T) {
	if got := mcp.AsRPCError(nil); got != nil {
		t.Errorf("AsRPCError(nil) = %v, want nil", got)
	}
}
