package aws

import (
	"context"
	"errors"
	"testing"

	"finetune-orchestrator/core/logging"
	"finetune-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIMDS struct {
	calls int
	err   error
}

func (f *fakeIMDS) GetInstanceIdentityDocument(context.Context, *imds.GetInstanceIdentityDocumentInput, ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := &imds.GetInstanceIdentityDocumentOutput{}
	out.AccountID = "123456789012"
	out.AvailabilityZone = "us-east-1a"
	out.InstanceID = "i-0abc"
	out.Region = "us-east-1"
	return out, nil
}

// fakeEC2 serves tags in pages of one to exercise pagination
type fakeEC2 struct {
	tags    []types.TagDescription
	filters []types.Filter
	created []types.Tag
}

func (f *fakeEC2) DescribeTags(_ context.Context, in *ec2.DescribeTagsInput, _ ...func(*ec2.Options)) (*ec2.DescribeTagsOutput, error) {
	f.filters = in.Filters
	idx := 0
	if in.NextToken != nil {
		for i, tag := range f.tags {
			if aws.ToString(tag.Key) == *in.NextToken {
				idx = i
			}
		}
	}
	out := &ec2.DescribeTagsOutput{}
	if idx < len(f.tags) {
		out.Tags = f.tags[idx : idx+1]
	}
	if idx+1 < len(f.tags) {
		out.NextToken = f.tags[idx+1].Key
	}
	return out, nil
}

func (f *fakeEC2) CreateTags(_ context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	for _, tag := range in.Tags {
		f.created = append(f.created, tag)
		replaced := false
		for i := range f.tags {
			if aws.ToString(f.tags[i].Key) == aws.ToString(tag.Key) {
				f.tags[i].Value = tag.Value
				replaced = true
			}
		}
		if !replaced {
			f.tags = append(f.tags, types.TagDescription{Key: tag.Key, Value: tag.Value, ResourceId: aws.String(in.Resources[0])})
		}
	}
	return &ec2.CreateTagsOutput{}, nil
}

func tag(key, value string) types.TagDescription {
	return types.TagDescription{Key: aws.String(key), Value: aws.String(value), ResourceId: aws.String("i-0abc")}
}

func TestIdentityFromInstanceDocument(t *testing.T) {
	meta := &fakeIMDS{}
	client := NewMetadataClientWithAPI(&fakeEC2{}, meta, logging.Discard())

	id, err := client.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.InstanceIdentity{
		Provider: models.ProviderAWS,
		Project:  "123456789012",
		Zone:     "us-east-1a",
		Instance: "i-0abc",
	}, id)

	_, err = client.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, meta.calls)
}

func TestIdentityError(t *testing.T) {
	client := NewMetadataClientWithAPI(&fakeEC2{}, &fakeIMDS{err: errors.New("no imds")}, logging.Discard())

	_, err := client.ReadAll(context.Background())
	assert.ErrorContains(t, err, "no imds")
}

func TestReadAllFollowsPages(t *testing.T) {
	api := &fakeEC2{tags: []types.TagDescription{
		tag("model_path", "s3://b/m.zip"),
		tag("dataset_path", "s3://b/d.jsonl"),
		tag("fine_tuning_id", "job1"),
	}}
	client := NewMetadataClientWithAPI(api, &fakeIMDS{}, logging.Discard())

	items, err := client.ReadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"model_path":     "s3://b/m.zip",
		"dataset_path":   "s3://b/d.jsonl",
		"fine_tuning_id": "job1",
	}, items)
	require.Len(t, api.filters, 1)
	assert.Equal(t, "resource-id", aws.ToString(api.filters[0].Name))
	assert.Equal(t, []string{"i-0abc"}, api.filters[0].Values)
}

func TestUpdateOverwritesTag(t *testing.T) {
	api := &fakeEC2{tags: []types.TagDescription{tag("status", "running")}}
	client := NewMetadataClientWithAPI(api, &fakeIMDS{}, logging.Discard())

	require.NoError(t, client.Update(context.Background(), "status", "completed"))
	require.NoError(t, client.Update(context.Background(), "artifact", "s3://b/out.zip"))

	items, err := client.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "completed", "artifact": "s3://b/out.zip"}, items)
	assert.Len(t, api.created, 2)
}
