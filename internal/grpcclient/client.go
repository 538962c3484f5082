package grpcclient

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/faceauth/internal/liveness"
	"github.com/example/faceauth/internal/logging"
)

// StartMethod is the full gRPC method name of the liveness daemon's capture call.
// The daemon answers with a google.protobuf.Struct carrying realness,
// sessionId and capturedImage.
const StartMethod = "/faceauth.liveness.v1.LivenessCapture/Start"

// ClientCredentials authenticate this process to the liveness daemon.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// DialLivenessCapture returns a liveness.Capture backed by the on-device daemon.
func DialLivenessCapture(ctx context.Context, addr string, creds ClientCredentials, logger *zap.Logger) (liveness.Capture, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_liveness_capture", "", err)
		logger.Error("failed to dial liveness daemon", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewLivenessCapture(conn, creds, logger), conn, nil
}

// NewLivenessCapture wraps an existing connection.
func NewLivenessCapture(conn grpc.ClientConnInterface, creds ClientCredentials, logger *zap.Logger) liveness.Capture {
	return &grpcLivenessCapture{conn: conn, creds: creds, logger: logger.Named("liveness_capture")}
}

type grpcLivenessCapture struct {
	conn   grpc.ClientConnInterface
	creds  ClientCredentials
	logger *zap.Logger
}

func (g *grpcLivenessCapture) Start(ctx context.Context) (*liveness.Outcome, error) {
	if g.creds.ClientID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx,
			"x-client-id", g.creds.ClientID,
			"x-client-secret", g.creds.ClientSecret,
		)
	}

	out := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, StartMethod, &emptypb.Empty{}, out); err != nil {
		// A cancelled or expired caller context is not a user cancellation.
		if ctxErr := ctx.Err(); ctxErr != nil {
			wrapped := logging.NewOperationError("grpcclient.liveness_start", "", ctxErr)
			g.logger.Warn("liveness capture call abandoned", zap.Error(wrapped))
			return nil, wrapped
		}
		mapped := sdkErrorFromStatus(err)
		g.logger.Warn("liveness capture call failed", zap.Error(mapped))
		return nil, mapped
	}
	return outcomeFromStruct(out)
}

// sdkErrorFromStatus maps the daemon's status codes onto the SDK's named error
// kinds. Codes with no SDK equivalent are returned wrapped but unmapped.
func sdkErrorFromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return logging.NewOperationError("grpcclient.liveness_start", "", err)
	}

	var kind liveness.ErrorKind
	switch st.Code() {
	case codes.Unauthenticated:
		kind = liveness.ErrorKindAuthorization
	case codes.PermissionDenied:
		kind = liveness.ErrorKindPermission
	case codes.Canceled, codes.Aborted:
		kind = liveness.ErrorKindUserCancelled
	case codes.Internal, codes.FailedPrecondition:
		kind = liveness.ErrorKindGeneric
	default:
		return logging.NewOperationError("grpcclient.liveness_start", "", err)
	}
	return &liveness.SDKError{Kind: kind, Message: st.Message()}
}

var errMalformedOutcome = errors.New("grpcclient: malformed liveness outcome")

func outcomeFromStruct(s *structpb.Struct) (*liveness.Outcome, error) {
	outcome := &liveness.Outcome{}
	for key, value := range s.GetFields() {
		switch key {
		case "realness":
			v, ok := value.GetKind().(*structpb.Value_BoolValue)
			if !ok {
				if isNull(value) {
					continue
				}
				return nil, logging.NewOperationError("grpcclient.decode_outcome", "", errMalformedOutcome)
			}
			realness := v.BoolValue
			outcome.Realness = &realness
		case "sessionId", "capturedImage":
			v, ok := value.GetKind().(*structpb.Value_StringValue)
			if !ok {
				if isNull(value) {
					continue
				}
				return nil, logging.NewOperationError("grpcclient.decode_outcome", "", errMalformedOutcome)
			}
			text := v.StringValue
			if key == "sessionId" {
				outcome.SessionID = &text
			} else {
				outcome.CapturedImage = &text
			}
		}
	}
	return outcome, nil
}

func isNull(value *structpb.Value) bool {
	_, ok := value.GetKind().(*structpb.Value_NullValue)
	return ok
}
