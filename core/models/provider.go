package models

// Provider represents a cloud provider
type Provider string

const (
	ProviderAWS Provider = "aws"
	ProviderGCP Provider = "gcp"
)

// InstanceIdentity identifies the VM the job runs on
type InstanceIdentity struct {
	Provider Provider
	Project  string // GCP project or AWS account
	Zone     string // zone name only, e.g. "us-central1-a"
	Instance string // instance name (GCP) or instance ID (AWS)
}
