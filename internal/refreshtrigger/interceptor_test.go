package refreshtrigger

import (
	"context"
	"io"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type countingRefresher struct{ n int }

func (r *countingRefresher) Refresh() { r.n++ }

func TestUnaryRefreshesOnPolicyMatch(t *testing.T) {
	refresher := &countingRefresher{}
	ic := New(refresher, PolicyFromCodes([]uint32{uint32(codes.Unavailable)}), nil)

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unavailable, "down")
	}

	err := ic.Unary()(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected the original error re-raised unchanged, got %v", err)
	}
	if refresher.n != 1 {
		t.Fatalf("expected exactly one refresh, got %d", refresher.n)
	}
}

func TestUnaryDoesNotRefreshOnNonMatchingCode(t *testing.T) {
	refresher := &countingRefresher{}
	ic := New(refresher, PolicyFromCodes([]uint32{uint32(codes.Unavailable)}), nil)

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.InvalidArgument, "bad")
	}

	_ = ic.Unary()(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	if refresher.n != 0 {
		t.Fatalf("expected no refresh for a non-matching code, got %d", refresher.n)
	}
}

func TestUnarySucceedsWithoutRefresh(t *testing.T) {
	refresher := &countingRefresher{}
	ic := New(refresher, DefaultPolicy(), nil)

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return nil
	}

	if err := ic.Unary()(context.Background(), "/svc/Method", nil, nil, nil, invoker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refresher.n != 0 {
		t.Fatalf("expected no refresh on success, got %d", refresher.n)
	}
}

type fakeClientStream struct {
	grpc.ClientStream
	errs []error
	idx  int
}

func (s *fakeClientStream) RecvMsg(m any) error {
	if s.idx >= len(s.errs) {
		return io.EOF
	}
	err := s.errs[s.idx]
	s.idx++
	return err
}

func TestStreamRefreshesOncePerFailingRead(t *testing.T) {
	refresher := &countingRefresher{}
	ic := New(refresher, PolicyFromCodes([]uint32{uint32(codes.Unavailable)}), nil)

	underlying := &fakeClientStream{errs: []error{nil, status.Error(codes.Unavailable, "down"), status.Error(codes.Unavailable, "still down")}}
	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return underlying, nil
	}

	cs, err := ic.Stream()(context.Background(), &grpc.StreamDesc{}, nil, "/svc/Stream", streamer)
	if err != nil {
		t.Fatalf("unexpected error building stream: %v", err)
	}

	var m int
	_ = cs.RecvMsg(&m) // nil, no refresh
	_ = cs.RecvMsg(&m) // Unavailable, refresh #1
	_ = cs.RecvMsg(&m) // Unavailable, refresh #2

	if refresher.n != 2 {
		t.Fatalf("expected 2 refreshes (one per failing read), got %d", refresher.n)
	}
}

func TestStreamDoesNotRefreshOnEOF(t *testing.T) {
	refresher := &countingRefresher{}
	ic := New(refresher, DefaultPolicy(), nil)

	underlying := &fakeClientStream{errs: nil}
	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return underlying, nil
	}

	cs, _ := ic.Stream()(context.Background(), &grpc.StreamDesc{}, nil, "/svc/Stream", streamer)
	var m int
	if err := cs.RecvMsg(&m); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if refresher.n != 0 {
		t.Fatalf("expected no refresh on stream end, got %d", refresher.n)
	}
}
