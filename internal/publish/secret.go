package publish

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// secretClient is the subset of the Secret Manager API the publisher uses.
type secretClient interface {
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	GetSecretVersion(ctx context.Context, req *secretmanagerpb.GetSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	Close() error
}

// SecretPublisher publishes the artifact as new versions of a named Secret
// Manager secret. Version creation is atomic on the service side; the handle
// is the new version's resource name.
type SecretPublisher struct {
	client secretClient
	parent string // projects/<project>/secrets/<name>
}

// NewSecretPublisher creates a Secret Manager publisher for the named secret.
// The secret itself must already exist; only versions are created here.
func NewSecretPublisher(ctx context.Context, project, name string) (*SecretPublisher, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &SecretPublisher{
		client: client,
		parent: fmt.Sprintf("projects/%s/secrets/%s", project, name),
	}, nil
}

// Publish submits data as a new secret version.
func (p *SecretPublisher) Publish(ctx context.Context, data []byte) (VersionHandle, error) {
	version, err := p.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  p.parent,
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	})
	if err != nil {
		return "", fmt.Errorf("failed to add secret version: %w", err)
	}
	return VersionHandle(version.GetName()), nil
}

// Current resolves the "latest" alias to a concrete version name.
func (p *SecretPublisher) Current(ctx context.Context) (VersionHandle, error) {
	version, err := p.client.GetSecretVersion(ctx, &secretmanagerpb.GetSecretVersionRequest{
		Name: p.parent + "/versions/latest",
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to read latest secret version: %w", err)
	}
	return VersionHandle(version.GetName()), nil
}

// Close releases the underlying gRPC client.
func (p *SecretPublisher) Close() error {
	return p.client.Close()
}
