// Package ports defines the interfaces between the pipeline, its platforms
// and the backend's storage.
package ports

import (
	"context"

	"github.com/payallenka/isl/internal/core/domain"
)

// PermissionPlatform reports and requests camera authorization.
// Implementations: device node (default), terminal prompt, static.
type PermissionPlatform interface {
	CheckStatus(ctx context.Context) (domain.PermissionStatus, error)
	RequestPermission(ctx context.Context) (domain.PermissionStatus, error)
}

// Camera is a photo-capable camera backend.
type Camera interface {
	// Devices enumerates the cameras this backend can open.
	Devices(ctx context.Context) ([]domain.CameraDevice, error)

	// TakePhoto captures one still from the given device.
	TakePhoto(ctx context.Context, device domain.CameraDevice, opts domain.CaptureOptions) (*domain.CapturedFrame, error)
}

// FeatureEncoder turns captured frames into a keypoint tensor.
type FeatureEncoder interface {
	Encode(ctx context.Context, frames []*domain.CapturedFrame) (domain.KeypointTensor, error)
}

// Predictor classifies a keypoint tensor. An empty token means the request
// is sent unauthenticated.
type Predictor interface {
	Predict(ctx context.Context, tensor domain.KeypointTensor, token string) (*domain.PredictionResult, error)
}

// HistoryFetcher reads the transaction history.
type HistoryFetcher interface {
	List(ctx context.Context, token string) ([]domain.TransactionRecord, error)
	FetchLatest(ctx context.Context, token string) (domain.TransactionRecord, bool, error)
}

// CredentialProvider manages the signed-in identity and hands out bearer tokens.
type CredentialProvider interface {
	SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error)
	SignUp(ctx context.Context, email, password, displayName string) (*domain.AuthSession, error)
	SignOut(ctx context.Context) error

	// CurrentToken returns a fresh token, or "" when nobody is signed in.
	CurrentToken(ctx context.Context) (string, error)

	// OnChange registers fn for sign-in and sign-out events. fn receives nil
	// on sign-out. The returned func unsubscribes.
	OnChange(fn func(*domain.UserInfo)) (unsubscribe func())
}
