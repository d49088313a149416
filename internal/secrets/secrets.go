package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"github.com/resq-app/resq-backend/internal/logging"
	secretmanagerpb "google.golang.org/genproto/googleapis/cloud/secretmanager/v1"
)

//Manager is an abstraction over Secret Manager
type Manager interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

//Client Real Secrets Manager client.
type Client struct {
	inner     *secretmanager.Client
	projectID string
}

//NewClient Connects to Secret Manager of given project.
func NewClient(ctx context.Context, projectID string) (*Client, error) {
	inner, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secretmanager.NewClient: %w", err)
	}
	return &Client{inner: inner, projectID: projectID}, nil
}

//Get Gets latest value of specified secret.
func (c *Client) Get(ctx context.Context, name string) ([]byte, error) {
	logger := logging.FromContext(ctx).Named("secrets.Get")

	logger.Debugf("Accessing secret '%v'", name)

	req := secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%v/secrets/%v/versions/latest", c.projectID, name),
	}

	secret, err := c.inner.AccessSecretVersion(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("Failed to get secret value: %w", err)
	}

	logger.Debugf("Got secret '%v'", name)

	return secret.GetPayload().GetData(), nil
}

//Close Closes the connection.
func (c *Client) Close() error {
	return c.inner.Close()
}

//MockClient Map-backed Secrets Manager client.
type MockClient map[string][]byte

//Get Gets value of specified secret.
func (c MockClient) Get(_ context.Context, name string) ([]byte, error) {
	v, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("secret %v not found", name)
	}
	return v, nil
}
