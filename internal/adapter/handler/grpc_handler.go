package handler

import (
	"context"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/core/service"
)

const ServiceName = "carryo.jobform.v1.JobForm"

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type UpdateRequest struct {
	SessionID string     `json:"session_id"`
	Patch     DraftPatch `json:"patch"`
}

type CancelRequest struct {
	SessionID string `json:"session_id"`
	Confirmed bool   `json:"confirmed"`
}

type SelectCenterRequest struct {
	SessionID string `json:"session_id"`
	CenterID  string `json:"center_id"`
}

type Empty struct{}

type CentersResponse struct {
	Centers []domain.RecyclingCenter `json:"centers"`
}

// JobFormServer is the RPC surface of the form service.
type JobFormServer interface {
	Start(ctx context.Context, req *Empty) (*SessionView, error)
	Get(ctx context.Context, req *SessionRequest) (*SessionView, error)
	Update(ctx context.Context, req *UpdateRequest) (*SessionView, error)
	Next(ctx context.Context, req *SessionRequest) (*SessionView, error)
	Back(ctx context.Context, req *SessionRequest) (*SessionView, error)
	Cancel(ctx context.Context, req *CancelRequest) (*SessionView, error)
	Submit(ctx context.Context, req *SessionRequest) (*SessionView, error)
	SelectRecyclingCenter(ctx context.Context, req *SelectCenterRequest) (*SessionView, error)
	ListRecyclingCenters(ctx context.Context, req *Empty) (*CentersResponse, error)
}

var JobFormServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*JobFormServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Start", JobFormServer.Start),
		unary("Get", JobFormServer.Get),
		unary("Update", JobFormServer.Update),
		unary("Next", JobFormServer.Next),
		unary("Back", JobFormServer.Back),
		unary("Cancel", JobFormServer.Cancel),
		unary("Submit", JobFormServer.Submit),
		unary("SelectRecyclingCenter", JobFormServer.SelectRecyclingCenter),
		unary("ListRecyclingCenters", JobFormServer.ListRecyclingCenters),
	},
	Metadata: "carryo/jobform/v1/jobform.proto",
}

func RegisterJobFormServer(s grpc.ServiceRegistrar, srv JobFormServer) {
	s.RegisterService(&JobFormServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(JobFormServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(JobFormServer), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(JobFormServer), ctx, req.(*Req))
			})
		},
	}
}

type GRPCHandler struct {
	forms *service.JobFormService
	now   func() time.Time
}

func NewGRPCHandler(forms *service.JobFormService) *GRPCHandler {
	return &GRPCHandler{forms: forms, now: time.Now}
}

func (h *GRPCHandler) Start(ctx context.Context, req *Empty) (*SessionView, error) {
	customerID, _ := CustomerIDFromContext(ctx)
	sess, err := h.forms.Start(ctx, customerID)
	return h.view(sess, err)
}

func (h *GRPCHandler) Get(ctx context.Context, req *SessionRequest) (*SessionView, error) {
	customerID, _ := CustomerIDFromContext(ctx)
	sess, err := h.forms.Get(ctx, customerID, req.SessionID)
	return h.view(sess, err)
}

func (h *GRPCHandler) Update(ctx context.Context, req *UpdateRequest) (*SessionView, error) {
	edits, err := req.Patch.Edits()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	customerID, _ := CustomerIDFromContext(ctx)
	sess, err := h.forms.Update(ctx, customerID, req.SessionID, edits...)
	return h.view(sess, err)
}

func (h *GRPCHandler) Next(ctx context.Context, req *SessionRequest) (*SessionView, error) {
	customerID, _ := CustomerIDFromContext(ctx)
	sess, _, err := h.forms.Next(ctx, customerID, req.SessionID)
	return h.view(sess, err)
}

func (h *GRPCHandler) Back(ctx context.Context, req *SessionRequest) (*SessionView, error) {
	customerID, _ := CustomerIDFromContext(ctx)
	sess, err := h.forms.Back(ctx, customerID, req.SessionID)
	return h.view(sess, err)
}

func (h *GRPCHandler) Cancel(ctx context.Context, req *CancelRequest) (*SessionView, error) {
	customerID, _ := CustomerIDFromContext(ctx)
	sess, err := h.forms.Cancel(ctx, customerID, req.SessionID, req.Confirmed)
	return h.view(sess, err)
}

func (h *GRPCHandler) Submit(ctx context.Context, req *SessionRequest) (*SessionView, error) {
	customerID, _ := CustomerIDFromContext(ctx)
	sess, err := h.forms.Submit(ctx, customerID, req.SessionID)
	return h.view(sess, err)
}

func (h *GRPCHandler) SelectRecyclingCenter(ctx context.Context, req *SelectCenterRequest) (*SessionView, error) {
	customerID, _ := CustomerIDFromContext(ctx)
	sess, err := h.forms.SelectRecyclingCenter(ctx, customerID, req.SessionID, req.CenterID)
	return h.view(sess, err)
}

func (h *GRPCHandler) ListRecyclingCenters(ctx context.Context, req *Empty) (*CentersResponse, error) {
	centers, err := h.forms.RecyclingCenters(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &CentersResponse{Centers: centers}, nil
}

func (h *GRPCHandler) view(sess *service.FormSession, err error) (*SessionView, error) {
	if err != nil {
		return nil, grpcError(err)
	}
	v := NewSessionView(sess, h.now())
	return &v, nil
}

// grpcError reuses the HTTP mapping so both surfaces agree on error classes.
func grpcError(err error) error {
	code, resp := errorStatus(err)
	return status.Error(grpcCode(code), resp.Error)
}

func grpcCode(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnprocessableEntity:
		return codes.FailedPrecondition
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.Aborted
	case http.StatusGone:
		return codes.FailedPrecondition
	case http.StatusBadGateway:
		return codes.Unavailable
	}
	return codes.Internal
}

// UnaryInterceptor authenticates calls with the bearer token in the
// "authorization" metadata.
func (a *Authenticator) UnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var header string
	if values := md.Get("authorization"); len(values) > 0 {
		header = values[0]
	}
	ctx, err := a.authenticate(ctx, header)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "not authenticated")
	}
	return handler(ctx, req)
}
