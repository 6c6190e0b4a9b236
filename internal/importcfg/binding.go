package importcfg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/wms-admin/gateway/internal/client"
	"github.com/wms-admin/gateway/internal/models"
)

// restBinding routes an entity's batch import through the resilient API
// client. pathBase is the entity's plural resource prefix, e.g.
// "/warehouses".
type restBinding struct {
	api      *client.Client
	pathBase string
}

// NewRESTBinding builds the standard binding for an entity resource.
func NewRESTBinding(api *client.Client, pathBase string) Binding {
	return &restBinding{api: api, pathBase: pathBase}
}

func (b *restBinding) Submit(ctx context.Context, p Payload) (*models.BatchImportResult, error) {
	if p.File != nil {
		return b.submitFile(ctx, p)
	}
	return b.submitRows(ctx, p.Rows)
}

func (b *restBinding) submitRows(ctx context.Context, rows []map[string]string) (*models.BatchImportResult, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encoding import rows: %w", err)
	}

	resp, err := b.api.Request(ctx, http.MethodPost, b.pathBase+"/batch-import-data", body, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

func (b *restBinding) submitFile(ctx context.Context, p Payload) (*models.BatchImportResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", p.FileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(p.File); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// The multipart writer's content type carries the boundary; the
	// client passes it through untouched.
	resp, err := b.api.Request(ctx, http.MethodPost, b.pathBase+"/batch-import", buf.Bytes(), &client.Options{
		ContentType: w.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

func (b *restBinding) FetchTemplate(ctx context.Context) ([]byte, error) {
	resp, err := b.api.Request(ctx, http.MethodGet, b.pathBase+"/import-template", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("template download failed with status %d", resp.Status)
	}
	return resp.Body, nil
}

func decodeResult(resp *client.Response) (*models.BatchImportResult, error) {
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("batch import failed with status %d", resp.Status)
	}
	var result models.BatchImportResult
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding batch import result: %w", err)
	}
	return &result, nil
}
