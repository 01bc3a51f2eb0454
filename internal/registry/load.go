package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

const maxRegistrySize = 4 << 20

// Format is the encoding of a registry document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFor picks a format from the extension of name, defaulting to YAML.
func FormatFor(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Decode parses a registry document.
func Decode(data []byte, format Format) (File, error) {
	var f File
	var err error
	switch format {
	case FormatTOML:
		var md toml.MetaData
		md, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&f)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown key %q", undecoded[0].String())
			}
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&f)
		if err == io.EOF {
			err = nil
		}
	default:
		return File{}, fmt.Errorf("unsupported registry format %q", format)
	}
	if err != nil {
		return File{}, fmt.Errorf("failed to parse %s registry: %w", format, err)
	}
	return f, nil
}

// Load reads a registry from a local path or an s3://bucket/key URL.
func Load(ctx context.Context, source string) (*Registry, error) {
	data, err := readSource(ctx, source)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data, FormatFor(source))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return New(f, os.Getenv)
}

func readSource(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "s3://") {
		return readS3Object(ctx, source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("registry file not found: %s", source)
		}
		return nil, fmt.Errorf("failed to read registry file %s: %w", source, err)
	}
	return data, nil
}

func readS3Object(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	client, err := newS3Client(ctx, os.Getenv("AWS_ENDPOINT_URL"))
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get registry object %q: %w", rawURL, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxRegistrySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read registry object %q: %w", rawURL, err)
	}
	if len(data) > maxRegistrySize {
		return nil, fmt.Errorf("registry object %q exceeds %d bytes", rawURL, maxRegistrySize)
	}
	return data, nil
}

func newS3Client(ctx context.Context, endpoint string) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws sdk config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if endpoint != "" {
			options.BaseEndpoint = aws.String(endpoint)
			options.UsePathStyle = true
		}
	}), nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid registry URL: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid registry URL %q: expected s3://bucket/key", rawURL)
	}

	key = strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if key == "" {
		return "", "", fmt.Errorf("registry URL %q has empty key", rawURL)
	}
	return u.Host, key, nil
}
