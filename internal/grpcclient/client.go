package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/leafscan/internal/imageprocessor"
	"github.com/example/leafscan/internal/logging"
)

const (
	// ServiceName is the model service's gRPC service.
	ServiceName = "leafscan.v1.Classifier"
	// PredictMethod takes a BytesValue holding a model-ready JPEG and answers
	// a Struct with a "probabilities" number list.
	PredictMethod = "/" + ServiceName + "/Predict"

	probabilitiesField = "probabilities"
)

// DialClassifier returns a ready-to-use gRPC client for the model service.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (imageprocessor.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &grpcClassifier{conn: conn, logger: logger}, conn, nil
}

type grpcClassifier struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

func (g *grpcClassifier) Predict(ctx context.Context, scanID string, imageBytes []byte) (*imageprocessor.Prediction, error) {
	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, PredictMethod, wrapperspb.Bytes(imageBytes), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", scanID, err)
		g.logger.Error("classifier call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	probabilities, err := decodeProbabilities(resp)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.decode_prediction", scanID, err)
	}
	pred, err := imageprocessor.Top(probabilities)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.decode_prediction", scanID, err)
	}
	return pred, nil
}

func decodeProbabilities(resp *structpb.Struct) ([]float32, error) {
	field, ok := resp.GetFields()[probabilitiesField]
	if !ok {
		return nil, fmt.Errorf("response missing %q", probabilitiesField)
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%q is not a list", probabilitiesField)
	}
	out := make([]float32, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not a number", probabilitiesField, i)
		}
		out = append(out, float32(n.NumberValue))
	}
	return out, nil
}
