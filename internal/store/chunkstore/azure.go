package chunkstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// AzureConfig mirrors internal/storage/azure.go's AzureConfig: an account
// plus one of a connection string, SAS token or shared key, and the
// container chunk blobs live in.
type AzureConfig struct {
	AccountID        string
	AccountKey       string
	Container        string
	SASToken         string
	ConnectionString string
}

// AzureChunkStore stores chunk blobs in an Azure Blob Storage container,
// grounded on internal/storage/azure.go's AzureBackend.
type AzureChunkStore struct {
	client    *azblob.Client
	container string
}

// NewAzureChunkStore builds an azblob.Client from cfg using the same
// connection-string/SAS-token/shared-key precedence the teacher's
// NewAzureBackend uses, then verifies the container is reachable.
func NewAzureChunkStore(ctx context.Context, cfg AzureConfig) (*AzureChunkStore, error) {
	var client *azblob.Client
	var err error

	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.SASToken != "":
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/?%s", cfg.AccountID, cfg.SASToken)
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	case cfg.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountID, cfg.AccountKey)
		if err != nil {
			return nil, cubeerr.Wrap(cubeerr.KindStore, "creating azure shared key credential", err)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountID)
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	default:
		return nil, cubeerr.New(cubeerr.KindStore, "no azure authentication method provided")
	}
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "creating azure client", err)
	}

	if _, err := client.ServiceClient().NewContainerClient(cfg.Container).GetProperties(ctx, nil); err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "accessing azure container "+cfg.Container, err)
	}
	return &AzureChunkStore{client: client, container: cfg.Container}, nil
}

func (a *AzureChunkStore) Put(ctx context.Context, key string, data []byte) error {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlockBlobClient(key)
	_, err := blobClient.Upload(ctx, &readSeekCloser{bytes.NewReader(data)}, nil)
	if err != nil {
		return cubeerr.Wrap(cubeerr.KindStore, "uploading azure blob "+key, err)
	}
	return nil
}

func (a *AzureChunkStore) Get(ctx context.Context, key string) ([]byte, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key)
	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "downloading azure blob "+key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "reading azure blob body for "+key, err)
	}
	return data, nil
}

func (a *AzureChunkStore) Delete(ctx context.Context, key string) error {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key)
	_, err := blobClient.Delete(ctx, nil)
	if err != nil {
		if isNotFoundError(err) {
			return nil
		}
		return cubeerr.Wrap(cubeerr.KindStore, "deleting azure blob "+key, err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return false
}

// readSeekCloser adapts an io.ReadSeeker to the io.ReadSeekCloser azblob's
// Upload requires.
type readSeekCloser struct {
	io.ReadSeeker
}

func (r *readSeekCloser) Close() error { return nil }
