package aws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"finetune-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// EC2API is the subset of the EC2 client used for instance tags
type EC2API interface {
	DescribeTags(ctx context.Context, params *ec2.DescribeTagsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeTagsOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

// IdentityAPI is the subset of the IMDS client used to find the running instance
type IdentityAPI interface {
	GetInstanceIdentityDocument(ctx context.Context, params *imds.GetInstanceIdentityDocumentInput, optFns ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error)
}

// MetadataClient exposes EC2 instance tags as job metadata. EC2 has no
// fingerprint, so concurrent updates are last-write-wins.
type MetadataClient struct {
	ec2Client EC2API
	imds      IdentityAPI
	logger    *slog.Logger

	mu       sync.Mutex
	identity *models.InstanceIdentity
}

// NewMetadataClient creates a client from the default AWS configuration
func NewMetadataClient(ctx context.Context, region string, logger *slog.Logger) (*MetadataClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewMetadataClientWithAPI(ec2.NewFromConfig(cfg), imds.NewFromConfig(cfg), logger), nil
}

// NewMetadataClientWithAPI creates a client from explicit collaborators
func NewMetadataClientWithAPI(ec2Client EC2API, identity IdentityAPI, logger *slog.Logger) *MetadataClient {
	return &MetadataClient{
		ec2Client: ec2Client,
		imds:      identity,
		logger:    logger,
	}
}

// Identity returns the account, availability zone and id of the running instance
func (c *MetadataClient) Identity(ctx context.Context) (models.InstanceIdentity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity != nil {
		return *c.identity, nil
	}

	doc, err := c.imds.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
	if err != nil {
		return models.InstanceIdentity{}, fmt.Errorf("failed to get instance identity document: %w", err)
	}

	id := models.InstanceIdentity{
		Provider: models.ProviderAWS,
		Project:  doc.AccountID,
		Zone:     doc.AvailabilityZone,
		Instance: doc.InstanceID,
	}
	c.identity = &id
	return id, nil
}

// ReadAll returns every tag of the running instance
func (c *MetadataClient) ReadAll(ctx context.Context) (map[string]string, error) {
	id, err := c.Identity(ctx)
	if err != nil {
		return nil, err
	}

	input := &ec2.DescribeTagsInput{
		Filters: []types.Filter{
			{Name: aws.String("resource-id"), Values: []string{id.Instance}},
		},
	}

	tags := make(map[string]string)
	for {
		out, err := c.ec2Client.DescribeTags(ctx, input)
		if err != nil {
			c.logger.Error("Error fetching instance tags", "instance", id.Instance, "error", err)
			return nil, fmt.Errorf("failed to describe tags of %s: %w", id.Instance, err)
		}
		for _, tag := range out.Tags {
			tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}
	return tags, nil
}

// Update creates or overwrites the tag key on the running instance
func (c *MetadataClient) Update(ctx context.Context, key, value string) error {
	id, err := c.Identity(ctx)
	if err != nil {
		return err
	}

	_, err = c.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id.Instance},
		Tags:      []types.Tag{{Key: aws.String(key), Value: aws.String(value)}},
	})
	if err != nil {
		c.logger.Error("Error updating instance tag", "key", key, "error", err)
		return fmt.Errorf("failed to update tag %s: %w", key, err)
	}
	return nil
}
