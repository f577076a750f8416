package docker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docker/docker/api/types/registry"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// RegistryAuth produces the encoded credentials sent with a push
type RegistryAuth interface {
	Encode(ctx context.Context, imageName string) (string, error)
}

// StaticAuth uses a fixed username and password
type StaticAuth struct {
	Username string
	Password string
}

// Encode returns the base64 auth header for the configured credentials
func (a StaticAuth) Encode(_ context.Context, imageName string) (string, error) {
	return registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      a.Username,
		Password:      a.Password,
		ServerAddress: registryHost(imageName),
	})
}

// GoogleAuth exchanges Google credentials for an access token accepted by
// Artifact Registry and Container Registry
type GoogleAuth struct {
	CredentialsFile string
}

// Encode returns an oauth2accesstoken auth header
func (a GoogleAuth) Encode(ctx context.Context, imageName string) (string, error) {
	creds, err := a.credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find google credentials: %w", err)
	}
	token, err := creds.TokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}

	return registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      "oauth2accesstoken",
		Password:      token.AccessToken,
		ServerAddress: registryHost(imageName),
	})
}

func (a GoogleAuth) credentials(ctx context.Context) (*google.Credentials, error) {
	if a.CredentialsFile != "" {
		if data, err := os.ReadFile(a.CredentialsFile); err == nil {
			return google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
		}
	}
	return google.FindDefaultCredentials(ctx, cloudPlatformScope)
}

// AnonymousAuth sends no credentials
type AnonymousAuth struct{}

// Encode returns an empty auth header
func (AnonymousAuth) Encode(context.Context, string) (string, error) {
	return "", nil
}

// SelectAuth picks explicit credentials first, Google tokens for Google
// registries, and anonymous access otherwise
func SelectAuth(imageName, username, password, credentialsFile string) RegistryAuth {
	if username != "" {
		return StaticAuth{Username: username, Password: password}
	}
	if IsGoogleRegistry(imageName) {
		return GoogleAuth{CredentialsFile: credentialsFile}
	}
	return AnonymousAuth{}
}

// ImageAuth chooses the credentials for each image when it is pushed
type ImageAuth struct {
	Username        string
	Password        string
	CredentialsFile string
}

// Encode delegates to the RegistryAuth SelectAuth picks for imageName
func (a ImageAuth) Encode(ctx context.Context, imageName string) (string, error) {
	return SelectAuth(imageName, a.Username, a.Password, a.CredentialsFile).Encode(ctx, imageName)
}

// IsGoogleRegistry reports whether the image is hosted on gcr.io or *.pkg.dev
func IsGoogleRegistry(imageName string) bool {
	host := registryHost(imageName)
	return host == "gcr.io" || strings.HasSuffix(host, ".gcr.io") || strings.HasSuffix(host, ".pkg.dev")
}

// registryHost returns the registry part of an image reference, or an empty
// string for Docker Hub images
func registryHost(imageName string) string {
	first, _, found := strings.Cut(imageName, "/")
	if !found {
		return ""
	}
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first
	}
	return ""
}
