package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"finetune-orchestrator/core/models"

	"cloud.google.com/go/compute/metadata"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrFingerprintMismatch is returned when instance metadata changed between read and write
var ErrFingerprintMismatch = errors.New("instance metadata fingerprint mismatch")

// InstancesAPI is the part of the Compute Engine instances API used for metadata
type InstancesAPI interface {
	Get(ctx context.Context, project, zone, instance string) (*compute.Instance, error)
	SetMetadata(ctx context.Context, project, zone, instance string, md *compute.Metadata) error
}

// IdentityResolver finds out which instance the process runs on
type IdentityResolver interface {
	Resolve(ctx context.Context) (models.InstanceIdentity, error)
}

// MetadataClient reads and writes the metadata items of the running instance
type MetadataClient struct {
	instances InstancesAPI
	resolver  IdentityResolver
	logger    *slog.Logger

	mu       sync.Mutex
	identity *models.InstanceIdentity
}

// NewMetadataClient creates a client backed by the Compute Engine API and the
// GCE metadata server
func NewMetadataClient(ctx context.Context, credentialsFile string, logger *slog.Logger) (*MetadataClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err == nil {
			opts = append(opts, option.WithCredentialsFile(credentialsFile))
		}
	}

	svc, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute service: %w", err)
	}

	return NewMetadataClientWithAPI(
		&computeInstances{svc: svc.Instances},
		NewServerIdentity(nil),
		logger,
	), nil
}

// NewMetadataClientWithAPI creates a client from explicit collaborators
func NewMetadataClientWithAPI(instances InstancesAPI, resolver IdentityResolver, logger *slog.Logger) *MetadataClient {
	return &MetadataClient{
		instances: instances,
		resolver:  resolver,
		logger:    logger,
	}
}

// Identity returns the project, zone and name of the running instance
func (c *MetadataClient) Identity(ctx context.Context) (models.InstanceIdentity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity != nil {
		return *c.identity, nil
	}
	id, err := c.resolver.Resolve(ctx)
	if err != nil {
		return models.InstanceIdentity{}, fmt.Errorf("failed to resolve instance identity: %w", err)
	}
	c.identity = &id
	return id, nil
}

// ReadAll returns the instance metadata items as a key/value map
func (c *MetadataClient) ReadAll(ctx context.Context) (map[string]string, error) {
	instance, err := c.getInstance(ctx)
	if err != nil {
		return nil, err
	}

	items := make(map[string]string)
	if instance.Metadata == nil {
		return items, nil
	}
	for _, item := range instance.Metadata.Items {
		if item == nil {
			continue
		}
		value := ""
		if item.Value != nil {
			value = *item.Value
		}
		items[item.Key] = value
	}
	return items, nil
}

// Update sets key to value using the fingerprint of a fresh read. A concurrent
// change makes the call fail with ErrFingerprintMismatch; it is not retried.
func (c *MetadataClient) Update(ctx context.Context, key, value string) error {
	id, err := c.Identity(ctx)
	if err != nil {
		return err
	}
	instance, err := c.getInstance(ctx)
	if err != nil {
		return err
	}

	md := &compute.Metadata{}
	if instance.Metadata != nil {
		md.Fingerprint = instance.Metadata.Fingerprint
		md.Items = instance.Metadata.Items
	}

	updated := false
	for _, item := range md.Items {
		if item != nil && item.Key == key {
			item.Value = &value
			updated = true
			break
		}
	}
	if !updated {
		md.Items = append(md.Items, &compute.MetadataItems{Key: key, Value: &value})
	}

	if err := c.instances.SetMetadata(ctx, id.Project, id.Zone, id.Instance, md); err != nil {
		c.logger.Error("Error updating instance metadata", "key", key, "error", err)
		return fmt.Errorf("failed to update metadata key %s: %w", key, err)
	}
	return nil
}

func (c *MetadataClient) getInstance(ctx context.Context) (*compute.Instance, error) {
	id, err := c.Identity(ctx)
	if err != nil {
		return nil, err
	}
	instance, err := c.instances.Get(ctx, id.Project, id.Zone, id.Instance)
	if err != nil {
		c.logger.Error("Error fetching instance information", "instance", id.Instance, "error", err)
		return nil, fmt.Errorf("failed to get instance %s: %w", id.Instance, err)
	}
	return instance, nil
}

// computeInstances adapts *compute.InstancesService to InstancesAPI
type computeInstances struct {
	svc *compute.InstancesService
}

func (a *computeInstances) Get(ctx context.Context, project, zone, instance string) (*compute.Instance, error) {
	return a.svc.Get(project, zone, instance).Context(ctx).Do()
}

func (a *computeInstances) SetMetadata(ctx context.Context, project, zone, instance string, md *compute.Metadata) error {
	_, err := a.svc.SetMetadata(project, zone, instance, md).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s", ErrFingerprintMismatch, apiErr.Message)
	}
	return err
}

// ServerIdentity resolves the instance identity from the GCE metadata server
type ServerIdentity struct {
	client *metadata.Client
}

// NewServerIdentity creates a resolver; a nil http client uses the default one
func NewServerIdentity(hc *http.Client) *ServerIdentity {
	return &ServerIdentity{client: metadata.NewClient(hc)}
}

// Resolve queries project id, zone and instance name
func (s *ServerIdentity) Resolve(ctx context.Context) (models.InstanceIdentity, error) {
	project, err := s.client.ProjectIDWithContext(ctx)
	if err != nil {
		return models.InstanceIdentity{}, fmt.Errorf("project id: %w", err)
	}
	zone, err := s.client.ZoneWithContext(ctx)
	if err != nil {
		return models.InstanceIdentity{}, fmt.Errorf("zone: %w", err)
	}
	name, err := s.client.InstanceNameWithContext(ctx)
	if err != nil {
		return models.InstanceIdentity{}, fmt.Errorf("instance name: %w", err)
	}

	return models.InstanceIdentity{
		Provider: models.ProviderGCP,
		Project:  project,
		Zone:     zone,
		Instance: name,
	}, nil
}
