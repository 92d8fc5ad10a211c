package controlplane

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/artpar/fnrelease/internal/core/domain"
)

// LambdaAPI captures the subset of the AWS SDK client used by LambdaClient.
type LambdaAPI interface {
	GetFunctionConfiguration(ctx context.Context, params *lambda.GetFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
	PublishVersion(ctx context.Context, params *lambda.PublishVersionInput, optFns ...func(*lambda.Options)) (*lambda.PublishVersionOutput, error)
	CreateAlias(ctx context.Context, params *lambda.CreateAliasInput, optFns ...func(*lambda.Options)) (*lambda.CreateAliasOutput, error)
	UpdateAlias(ctx context.Context, params *lambda.UpdateAliasInput, optFns ...func(*lambda.Options)) (*lambda.UpdateAliasOutput, error)
}

// LambdaClient implements ControlPlane for AWS Lambda.
type LambdaClient struct {
	api    LambdaAPI
	logger *slog.Logger
}

// NewLambdaClient creates a control plane client over the given Lambda API.
func NewLambdaClient(api LambdaAPI, logger *slog.Logger) *LambdaClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LambdaClient{
		api:    api,
		logger: logger.With("component", "lambda"),
	}
}

// GetState reads the function configuration and maps its state fields.
func (c *LambdaClient) GetState(ctx context.Context, function string) (domain.FunctionState, error) {
	out, err := c.api.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
		FunctionName: aws.String(function),
	})
	if err != nil {
		return domain.FunctionState{}, wrap("GetState", function, err)
	}

	state := domain.FunctionState{
		State:            mapState(out.State),
		LastUpdateStatus: mapUpdateStatus(out.LastUpdateStatus),
		Reason:           aws.ToString(out.LastUpdateStatusReason),
	}
	if state.Reason == "" {
		state.Reason = aws.ToString(out.StateReason)
	}
	return state, nil
}

// UpdateCode points the function at an S3 object. It does not publish.
func (c *LambdaClient) UpdateCode(ctx context.Context, function string, location domain.ArtifactLocation) error {
	out, err := c.api.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(function),
		S3Bucket:     aws.String(location.Bucket),
		S3Key:        aws.String(location.Key),
		Publish:      false,
	})
	if err != nil {
		return wrap("UpdateCode", function, err)
	}
	c.logger.Info("function code update submitted",
		"function", function,
		"bucket", location.Bucket,
		"key", location.Key,
		"code_sha256", aws.ToString(out.CodeSha256),
	)
	return nil
}

// PublishVersion publishes the current code as an immutable version.
func (c *LambdaClient) PublishVersion(ctx context.Context, function, description string) (string, error) {
	out, err := c.api.PublishVersion(ctx, &lambda.PublishVersionInput{
		FunctionName: aws.String(function),
		Description:  aws.String(description),
	})
	if err != nil {
		return "", wrap("PublishVersion", function, err)
	}
	version := aws.ToString(out.Version)
	if version == "" {
		return "", wrap("PublishVersion", function, errors.New("control plane returned no version id"))
	}
	return version, nil
}

// CreateOrUpdateAlias updates the alias in place, creating it on first use.
func (c *LambdaClient) CreateOrUpdateAlias(ctx context.Context, function, aliasName, versionID, description string) error {
	_, err := c.api.UpdateAlias(ctx, &lambda.UpdateAliasInput{
		FunctionName:    aws.String(function),
		Name:            aws.String(aliasName),
		FunctionVersion: aws.String(versionID),
		Description:     aws.String(description),
	})
	if err == nil {
		return nil
	}

	var notFound *lambdatypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return wrap("UpdateAlias", function, err)
	}

	c.logger.Info("alias does not exist yet, creating", "function", function, "alias", aliasName)
	_, err = c.api.CreateAlias(ctx, &lambda.CreateAliasInput{
		FunctionName:    aws.String(function),
		Name:            aws.String(aliasName),
		FunctionVersion: aws.String(versionID),
		Description:     aws.String(description),
	})
	return wrap("CreateAlias", function, err)
}

func mapState(s lambdatypes.State) domain.LifecycleState {
	switch s {
	case lambdatypes.StateActive:
		return domain.StateActive
	case lambdatypes.StateInactive:
		return domain.StateInactive
	case lambdatypes.StateFailed:
		return domain.StateFailed
	default:
		return domain.StatePending
	}
}

func mapUpdateStatus(s lambdatypes.LastUpdateStatus) domain.UpdateStatus {
	switch s {
	case lambdatypes.LastUpdateStatusSuccessful:
		return domain.UpdateSuccessful
	case lambdatypes.LastUpdateStatusFailed:
		return domain.UpdateFailed
	default:
		return domain.UpdateInProgress
	}
}
