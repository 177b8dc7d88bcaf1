package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"immun/internal/shared/models"
)

const (
	pathLogin      = "/api/auth/login"
	pathMyRecords  = "/api/records/my-records"
	pathAllRecords = "/api/records/all-records"
	pathUpload     = "/api/records/upload"
	pathDocument   = "/api/records/document/"
)

func (c *Client) Login(ctx context.Context, username, password string) (models.LoginResponse, error) {
	const op = "login"
	b, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return models.LoginResponse{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, pathLogin, bytes.NewReader(b))
	if err != nil {
		return models.LoginResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(op, req)
	if err != nil {
		return models.LoginResponse{}, err
	}
	defer resp.Body.Close()
	var out models.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.LoginResponse{}, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if out.AccessToken == "" {
		return models.LoginResponse{}, fmt.Errorf("%s: empty access token", op)
	}
	return out, nil
}

// ListOwnRecords returns the caller's records in server order.
func (c *Client) ListOwnRecords(ctx context.Context) ([]models.ImmunizationRecord, error) {
	var out []models.ImmunizationRecord
	if err := c.getJSON(ctx, "list own records", pathMyRecords, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAllRecords returns every user's records. Requires an admin session.
func (c *Client) ListAllRecords(ctx context.Context) ([]models.ImmunizationRecord, error) {
	var out []models.ImmunizationRecord
	if err := c.getJSON(ctx, "list all records", pathAllRecords, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadRecord submits draft as one multipart request. The acknowledgement
// body is drained and ignored.
func (c *Client) UploadRecord(ctx context.Context, draft models.UploadDraft) error {
	const op = "upload record"
	body, contentType, err := EncodeDraft(draft)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, pathUpload, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// DocumentURL is where the document of record id can be opened directly.
func (c *Client) DocumentURL(id models.ID) string {
	return c.baseURL + pathDocument + url.PathEscape(id.String())
}

// Document is a fetched record document. Body must be closed.
type Document struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Filename      string
}

func (c *Client) FetchDocument(ctx context.Context, id models.ID) (*Document, error) {
	const op = "fetch document"
	req, err := c.newRequest(ctx, http.MethodGet, pathDocument+url.PathEscape(id.String()), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		doc.Filename = params["filename"]
	}
	return doc, nil
}
