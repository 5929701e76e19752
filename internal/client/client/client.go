package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Client is the set of backend operations used by the services.
type Client interface {
	Login(ctx context.Context, email, password string) (string, error)
	Me(ctx context.Context) (*User, error)
	Logout(ctx context.Context) error
	Renew(ctx context.Context) (string, error)

	GenerateUploadURL(ctx context.Context, fileName string, fileSize int64) (*UploadTarget, error)
	CompleteUpload(ctx context.Context, videoID string, req CompleteUploadRequest) (*CompleteUploadResponse, error)

	ImportVideo(ctx context.Context, req ImportRequest) (*ImportResponse, error)
	TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	ServerStats(ctx context.Context) (*ServerStats, error)
}

// Navigator is the front end's notion of "where the user is". It lets the
// pipeline send the user to the login surface after a failed renewal.
type Navigator interface {
	Location() string
	RedirectToLogin()
}

// IsAuthLocation reports whether loc is one of the auth pages.
func IsAuthLocation(loc string) bool {
	return strings.Contains(loc, "/auth/")
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type User struct {
	ID        FlexibleID `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
}

type UploadTarget struct {
	SASURL   string     `json:"sas_url"`
	WriteURL string     `json:"write_url"`
	FilePath string     `json:"file_path"`
	VideoID  FlexibleID `json:"video_id"`
}

// URL returns the write URL, whichever field the backend filled in.
func (t UploadTarget) URL() string {
	if t.WriteURL != "" {
		return t.WriteURL
	}
	return t.SASURL
}

type CompleteUploadRequest struct {
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	ObjectURL string `json:"object_url"`
}

type CompleteUploadResponse struct {
	Message string     `json:"message"`
	VideoID FlexibleID `json:"video_id"`
}

type ImportRequest struct {
	URL            string `json:"url"`
	CustomFileName string `json:"custom_file_name,omitempty"`
	FormatSelector string `json:"format_selector,omitempty"`
}

type ImportResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type TaskStatus struct {
	TaskID             string  `json:"task_id"`
	Status             string  `json:"status"`
	ProgressPercentage float64 `json:"progress_percentage"`
	UploadedBytes      int64   `json:"uploaded_bytes"`
	TotalBytes         int64   `json:"total_bytes"`
	CurrentStep        string  `json:"current_step"`
	BlobName           string  `json:"blob_name"`
	Message            string  `json:"message"`
	ErrorMessage       string  `json:"error_message"`
}

type ServerStats struct {
	ActiveUploads  int `json:"active_uploads"`
	MaxConcurrent  int `json:"max_concurrent"`
	AvailableSlots int `json:"available_slots"`
}

// FlexibleID decodes an identifier the backend may send as a number or a
// string.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string {
	return string(f)
}
