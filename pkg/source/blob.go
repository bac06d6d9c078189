package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// downloadFunc opens a blob for reading.
type downloadFunc func(ctx context.Context, container, name string) (io.ReadCloser, error)

// Blob reads references from one storage container. Blob names are
// lowercased and get a ".json" extension when they have none.
type Blob struct {
	Container string
	download  downloadFunc
}

// NewBlob connects to the storage account in connectionString.
func NewBlob(connectionString, container string) (*Blob, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid blob storage connection string: %w", err)
	}
	return &Blob{
		Container: container,
		download: func(ctx context.Context, container, name string) (io.ReadCloser, error) {
			resp, err := client.DownloadStream(ctx, container, name, nil)
			if err != nil {
				return nil, err
			}
			return resp.Body, nil
		},
	}, nil
}

// BlobName maps a test reference onto its blob name.
func BlobName(ref string) string {
	name := strings.ToLower(strings.TrimSpace(ref))
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return name
}

// Read implements Reader.
func (b *Blob) Read(ctx context.Context, ref string) ([]byte, error) {
	name := BlobName(ref)
	body, err := b.download(ctx, b.Container, name)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, fmt.Errorf("unable to load blob %s/%s: %w", b.Container, name, ErrNotFound)
		}
		return nil, fmt.Errorf("unable to load blob %s/%s: %w", b.Container, name, err)
	}
	defer body.Close()
	return io.ReadAll(body)
}
