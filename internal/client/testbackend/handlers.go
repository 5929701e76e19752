package testbackend

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type detail struct {
	Detail any `json:"detail"`
}

func fail(c echo.Context, status int, msg any) error {
	return c.JSON(status, detail{Detail: msg})
}

func (b *Backend) requireCSRF(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !b.EnforceCSRF {
			return next(c)
		}
		switch c.Request().Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return next(c)
		}

		header := c.Request().Header.Get(csrfHeader)
		cookie, err := c.Cookie(csrfCookie)

		b.mu.Lock()
		ok := err == nil && header != "" &&
			subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) == 1 &&
			b.csrfTokens[header]
		if ok && b.rejectCSRF > 0 {
			b.rejectCSRF--
			ok = false
		}
		b.mu.Unlock()

		if !ok {
			b.CSRFRejections.Add(1)
			return fail(c, http.StatusForbidden, "CSRF token missing or invalid")
		}
		return next(c)
	}
}

func (b *Backend) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tok, found := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")

		b.mu.Lock()
		email, ok := b.accessTokens[tok]
		b.mu.Unlock()

		if !found || !ok {
			return fail(c, http.StatusUnauthorized, "Could not validate credentials")
		}
		c.Set("email", email)
		return next(c)
	}
}

func (b *Backend) handleCSRFToken(c echo.Context) error {
	b.CSRFFetches.Add(1)
	if b.FailCSRF.Load() {
		return c.NoContent(http.StatusInternalServerError)
	}
	tok := uuid.NewString()

	b.mu.Lock()
	b.csrfTokens[tok] = true
	b.mu.Unlock()

	c.SetCookie(&http.Cookie{Name: csrfCookie, Value: tok, Path: "/", MaxAge: 3600, SameSite: http.SameSiteLaxMode})
	return c.JSON(http.StatusOK, map[string]string{"csrf_token": tok, "header_name": csrfHeader})
}

func (b *Backend) handleLogin(c echo.Context) error {
	b.LoginCalls.Add(1)
	email := c.FormValue("username")
	password := c.FormValue("password")

	b.mu.Lock()
	u, ok := b.users[email]
	if !ok || u.password != password {
		b.mu.Unlock()
		return fail(c, http.StatusUnauthorized, "Incorrect email or password")
	}
	access := b.issueLocked(email)
	refresh := "rt-" + uuid.NewString()
	b.refreshTokens[refresh] = email
	b.mu.Unlock()

	c.SetCookie(&http.Cookie{Name: refreshCookie, Value: refresh, Path: "/", HttpOnly: true, MaxAge: 7 * 24 * 3600})
	return c.JSON(http.StatusOK, map[string]string{"access_token": access, "token_type": "bearer"})
}

func (b *Backend) handleRefresh(c echo.Context) error {
	b.RefreshCalls.Add(1)
	if b.RefreshDelay > 0 {
		time.Sleep(b.RefreshDelay)
	}

	cookie, err := c.Cookie(refreshCookie)
	if err != nil || b.FailRefresh {
		return fail(c, http.StatusUnauthorized, "Invalid refresh token")
	}

	b.mu.Lock()
	email, ok := b.refreshTokens[cookie.Value]
	var access string
	if ok {
		access = b.issueLocked(email)
	}
	b.mu.Unlock()

	if !ok {
		return fail(c, http.StatusUnauthorized, "Invalid refresh token")
	}
	return c.JSON(http.StatusOK, map[string]string{"access_token": access, "token_type": "bearer"})
}

func (b *Backend) handleLogout(c echo.Context) error {
	b.LogoutCalls.Add(1)
	if cookie, err := c.Cookie(refreshCookie); err == nil {
		b.mu.Lock()
		delete(b.refreshTokens, cookie.Value)
		b.mu.Unlock()
	}
	c.SetCookie(&http.Cookie{Name: refreshCookie, Path: "/", MaxAge: -1})
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (b *Backend) handleMe(c echo.Context) error {
	email := c.Get("email").(string)

	b.mu.Lock()
	u := b.users[email]
	b.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]any{"id": 7, "email": email, "first_name": u.firstName})
}

func (b *Backend) handleGenerateSAS(c echo.Context) error {
	var req struct {
		FileName string `json:"file_name"`
		FileSize int64  `json:"file_size"`
	}
	if err := c.Bind(&req); err != nil || req.FileName == "" {
		return fail(c, http.StatusUnprocessableEntity, []map[string]string{{"msg": "file_name is required"}})
	}

	b.mu.Lock()
	b.videoSeq++
	id := b.videoSeq
	b.mu.Unlock()

	filePath := fmt.Sprintf("videos/%s-%s", uuid.NewString(), path.Base(req.FileName))
	return c.JSON(http.StatusOK, map[string]any{
		"sas_url":   fmt.Sprintf("%s/blob/%s?sv=2024-05-04&sp=cw&sig=test", b.URL(), filePath),
		"file_path": filePath,
		"video_id":  id,
	})
}

func (b *Backend) handleComplete(c echo.Context) error {
	var req struct {
		FileName  string `json:"file_name"`
		FileSize  int64  `json:"file_size"`
		ObjectURL string `json:"object_url"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}

	rec := Completion{VideoID: c.QueryParam("video_id"), FileName: req.FileName, FileSize: req.FileSize, ObjectURL: req.ObjectURL}
	b.mu.Lock()
	b.completions = append(b.completions, rec)
	b.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]any{"message": "Upload completed successfully", "video_id": rec.VideoID})
}

func (b *Backend) handleImport(c echo.Context) error {
	b.ImportCalls.Add(1)
	var req struct {
		URL            string `json:"url"`
		CustomFileName string `json:"custom_file_name"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if b.ImportError != "" {
		return fail(c, http.StatusBadRequest, b.ImportError)
	}

	id := b.NextTaskID
	if id == "" {
		id = uuid.NewString()
	}
	return c.JSON(http.StatusOK, map[string]string{
		"task_id": id,
		"status":  "pending_upload",
		"message": "Video import started",
	})
}

func (b *Backend) handleTaskStatus(c echo.Context) error {
	b.StatusCalls.Add(1)
	id := c.Param("id")

	b.mu.Lock()
	steps, ok := b.tasks[id]
	var step TaskStep
	if ok && len(steps) > 0 {
		step = steps[0]
		if len(steps) > 1 {
			b.tasks[id] = steps[1:]
		}
	}
	b.mu.Unlock()

	if !ok || len(steps) == 0 {
		return fail(c, http.StatusNotFound, "Task not found")
	}
	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-c.Request().Context().Done():
			return nil
		}
	}

	body := map[string]any{
		"task_id":             id,
		"status":              step.Status,
		"progress_percentage": step.Progress,
		"uploaded_bytes":      0,
		"current_step":        step.Step,
	}
	if step.Error != "" {
		body["error_message"] = step.Error
	}
	return c.JSON(http.StatusOK, body)
}

func (b *Backend) handleServerStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"server_stats": b.Stats})
}
