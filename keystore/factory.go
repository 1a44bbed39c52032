package keystore

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// BackendFor creates a key backend from a location URI. A URI without a
// scheme is a local file path.
func BackendFor(locationURI string, log *slog.Logger) (Backend, error) {
	if locationURI == "" {
		return nil, fmt.Errorf("%w: empty location", ErrInvalidLocationURI)
	}
	if !strings.Contains(locationURI, "://") {
		return NewFileBackend(locationURI, log)
	}

	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return createFileBackend(u, log)
	case "s3":
		return createS3Backend(u, log)
	case "vault":
		return createVaultBackend(u, log)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, u.Scheme)
	}
}

// file:///absolute/path or file://./relative/path
func createFileBackend(u *url.URL, log *slog.Logger) (Backend, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	return NewFileBackend(path, log)
}

// s3://[ACCESS_KEY:SECRET_KEY@]bucket/object/key?region=us-west-2&endpoint=custom.s3.com
func createS3Backend(u *url.URL, log *slog.Logger) (Backend, error) {
	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Backend(u.Host, strings.TrimPrefix(u.Path, "/"), region, query.Get("endpoint"), accessKey, secretKey, log)
}

// vault://host:port/mount/path/to/secret?tls=true
func createVaultBackend(u *url.URL, log *slog.Logger) (Backend, error) {
	scheme := "http"
	if u.Query().Get("tls") == "true" {
		scheme = "https"
	}

	mount, dataPath, found := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !found {
		return nil, fmt.Errorf("%w: vault URI needs a mount and a path", ErrInvalidLocationURI)
	}

	return NewVaultBackend(fmt.Sprintf("%s://%s", scheme, u.Host), mount, dataPath, log)
}
