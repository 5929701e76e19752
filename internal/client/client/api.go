package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
)

// Login exchanges email and password for an access credential. The backend
// also sets the durable refresh cookie.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (string, error) {
	var out TokenResponse
	_, err := c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Form:      url.Values{"username": {email}, "password": {password}},
		Out:       &out,
		Anonymous: true,
	})
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", apierr.Normalize(ErrMissingToken)
	}
	return out.AccessToken, nil
}

func (c *HTTPClient) Me(ctx context.Context) (*User, error) {
	var out User
	if _, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/users/me", Out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: "/auth/logout", NoRenew: true})
	return err
}

// Renew asks the backend for a new credential using the refresh cookie. It
// bypasses the credential and renewal middlewares.
func (c *HTTPClient) Renew(ctx context.Context) (string, error) {
	var out TokenResponse
	if _, err := c.bare(ctx, &Request{Method: http.MethodPost, Path: "/auth/refresh", Out: &out, Anonymous: true}); err != nil {
		return "", apierr.Normalize(err)
	}
	if out.AccessToken == "" {
		return "", apierr.Normalize(ErrMissingToken)
	}
	return out.AccessToken, nil
}

func (c *HTTPClient) GenerateUploadURL(ctx context.Context, fileName string, fileSize int64) (*UploadTarget, error) {
	var out UploadTarget
	_, err := c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/upload/generate-sas",
		Body: map[string]any{
			"file_name": fileName,
			"file_size": fileSize,
		},
		Out: &out,
	})
	if err != nil {
		return nil, err
	}
	if out.URL() == "" {
		return nil, &apierr.Error{Kind: apierr.KindServer, Message: "Upload URL missing from server response."}
	}
	return &out, nil
}

func (c *HTTPClient) CompleteUpload(ctx context.Context, videoID string, req CompleteUploadRequest) (*CompleteUploadResponse, error) {
	var out CompleteUploadResponse
	r := &Request{Method: http.MethodPost, Path: "/upload/complete", Body: req, Out: &out}
	if videoID != "" {
		r.Query = url.Values{"video_id": {videoID}}
	}
	if _, err := c.Do(ctx, r); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ImportVideo(ctx context.Context, req ImportRequest) (*ImportResponse, error) {
	var out ImportResponse
	if _, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: "/import/import-video", Body: req, Out: &out}); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		return nil, &apierr.Error{Kind: apierr.KindServer, Message: "Task id missing from server response."}
	}
	return &out, nil
}

func (c *HTTPClient) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var out TaskStatus
	if _, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/import/task-status/" + url.PathEscape(taskID), Out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ServerStats(ctx context.Context) (*ServerStats, error) {
	var out struct {
		ServerStats ServerStats `json:"server_stats"`
	}
	if _, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: "/import/server-stats", Out: &out}); err != nil {
		return nil, err
	}
	return &out.ServerStats, nil
}
