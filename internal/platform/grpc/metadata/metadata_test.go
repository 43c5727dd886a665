package metadata

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestFirstMetadataValueSkipsNonPrintable(t *testing.T) {
	md := metadata.MD{"X-Matchwarden-Request-Id": []string{"bad\n", "req-1"}}
	if got := FirstMetadataValue(md, RequestIDHeader); got != "req-1" {
		t.Fatalf("FirstMetadataValue = %q, want req-1", got)
	}
	if got := FirstMetadataValue(nil, RequestIDHeader); got != "" {
		t.Fatalf("expected empty value for nil metadata, got %q", got)
	}
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	if got := RequestIDFromContext(ctx); got != "req-9" {
		t.Fatalf("RequestIDFromContext = %q", got)
	}
	if got := RequestIDFromContext(nil); got != "" {
		t.Fatalf("expected empty id for nil context, got %q", got)
	}
}

func TestOutgoingWithRequestID(t *testing.T) {
	ctx := OutgoingWithRequestID(context.Background(), "req-2")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok || FirstMetadataValue(md, RequestIDHeader) != "req-2" {
		t.Fatalf("expected outgoing request id, got %v", md)
	}
	if _, ok := metadata.FromOutgoingContext(OutgoingWithRequestID(context.Background(), " ")); ok {
		t.Fatal("expected blank request id to add no metadata")
	}
}

func TestUnaryServerInterceptorGeneratorError(t *testing.T) {
	interceptor := UnaryServerInterceptor(func() (string, error) { return "", errors.New("boom") })
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not run")
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
}
