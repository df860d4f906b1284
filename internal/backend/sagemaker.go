package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"github.com/aws/smithy-go"

	"infergate/internal/apperrors"
)

// backendRetryAfter is the delay suggested to callers when the backend
// reports a temporary condition.
const backendRetryAfter = 30 * time.Second

// SageMaker invokes a SageMaker async inference endpoint.
type SageMaker struct {
	client   *sagemakerruntime.Client
	endpoint string
}

// NewSageMaker creates a SageMaker invoker for the named endpoint using
// the default credential chain.
func NewSageMaker(ctx context.Context, endpoint, region string) (*SageMaker, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.Internal("backend.init", err)
	}
	return &SageMaker{
		client:   sagemakerruntime.NewFromConfig(cfg),
		endpoint: endpoint,
	}, nil
}

// NewSageMakerFromClient wraps an existing client.
func NewSageMakerFromClient(client *sagemakerruntime.Client, endpoint string) *SageMaker {
	return &SageMaker{client: client, endpoint: endpoint}
}

func (s *SageMaker) InvokeAsync(ctx context.Context, in *InvokeInput) (*InvokeOutput, error) {
	req := &sagemakerruntime.InvokeEndpointAsyncInput{
		EndpointName:  aws.String(s.endpoint),
		InputLocation: aws.String(in.InputLocation),
		ContentType:   aws.String(in.ContentType),
		Accept:        aws.String(in.ContentType),
	}
	if in.InferenceID != "" {
		req.InferenceId = aws.String(in.InferenceID)
	}
	if in.InvocationTimeout > 0 {
		req.InvocationTimeoutSeconds = aws.Int32(int32(in.InvocationTimeout.Seconds()))
	}
	if in.RequestTTL > 0 {
		req.RequestTTLSeconds = aws.Int32(int32(in.RequestTTL.Seconds()))
	}

	out, err := s.client.InvokeEndpointAsync(ctx, req)
	if err != nil {
		return nil, classifyInvokeError(err)
	}

	result := &InvokeOutput{
		InferenceID:     aws.ToString(out.InferenceId),
		OutputLocation:  aws.ToString(out.OutputLocation),
		FailureLocation: aws.ToString(out.FailureLocation),
	}
	return result, nil
}

// classifyInvokeError maps a backend error into the taxonomy. Payload
// and model problems require the caller to change input; capacity and
// connectivity problems are transient.
func classifyInvokeError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.ErrorMessage()
		switch apiErr.ErrorCode() {
		case "ValidationError", "ValidationException":
			return apperrors.Rejected("BACKEND_REJECTED", "backend rejected the request: "+msg)
		case "ModelError", "ModelNotReadyException":
			return apperrors.Rejected("BACKEND_MODEL_ERROR", "model error during invocation: "+msg)
		case "ServiceUnavailable", "InternalFailure", "InternalDependencyException",
			"ThrottlingException", "Throttling":
			return apperrors.Transient("BACKEND_UNAVAILABLE",
				"backend temporarily unavailable: "+msg, backendRetryAfter)
		default:
			return apperrors.Internal("backend.invoke", err)
		}
	}
	return apperrors.Transient("BACKEND_CONNECTION_ERROR",
		fmt.Sprintf("backend.invoke: %v", err), backendRetryAfter)
}

var _ Invoker = (*SageMaker)(nil)
