// Package api wraps the BusNaama REST backend. Every call is a single
// attempt; there is no retry or backoff. A 404 on single-resource fetches
// means "no such resource" and is returned as a nil value, not an error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// LoginResponse carries the opaque session token and the secondary token
// exchanged with the realtime identity provider.
type LoginResponse struct {
	Token         string `json:"token"`
	RealtimeToken string `json:"realtime_token"`
}

func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	body := map[string]string{"username": username, "password": password}
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/login/", "", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	var out LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/logout/", token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}
	return nil
}

type meResponse struct {
	model.User
	Student *model.Student `json:"student"`
	Driver  *model.Driver  `json:"driver"`
}

// Me fetches the current profile. The backend inlines the user fields at
// the top level with optional student and driver records nested.
func (c *Client) Me(ctx context.Context, token string) (*model.Profile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/auth/me/", token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	var out meResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	user := out.User
	return &model.Profile{User: &user, Student: out.Student, Driver: out.Driver}, nil
}

// StudentBus returns the bus assigned to the calling student, or nil when
// none is assigned.
func (c *Client) StudentBus(ctx context.Context, token string) (*model.Bus, error) {
	return c.fetchBus(ctx, "/api/student/bus/", token)
}

// DriverBus returns the bus assigned to the calling driver, or nil.
func (c *Client) DriverBus(ctx context.Context, token string) (*model.Bus, error) {
	return c.fetchBus(ctx, "/api/driver/bus/", token)
}

// BusDetails returns a bus by id, or nil when it does not exist.
func (c *Client) BusDetails(ctx context.Context, token string, busID int) (*model.Bus, error) {
	return c.fetchBus(ctx, fmt.Sprintf("/api/buses/%d/", busID), token)
}

func (c *Client) fetchBus(ctx context.Context, path, token string) (*model.Bus, error) {
	resp, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	var bus model.Bus
	if err := json.NewDecoder(resp.Body).Decode(&bus); err != nil {
		return nil, err
	}
	return &bus, nil
}

// UpdateBusActiveStatus mirrors the realtime active flag onto the REST
// backend so bus listings stay consistent.
func (c *Client) UpdateBusActiveStatus(ctx context.Context, token string, busID int, isActive bool) error {
	body := map[string]bool{"status": isActive}
	resp, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/buses/%d/", busID), token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}
	return nil
}

func (c *Client) ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error {
	body := map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/change-password/", token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var detail struct {
			Detail string `json:"detail"`
			Error  string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil {
			if detail.Detail != "" {
				return fmt.Errorf("api: %s", detail.Detail)
			}
			if detail.Error != "" {
				return fmt.Errorf("api: %s", detail.Error)
			}
		}
		return statusError(resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body interface{}) (*http.Response, error) {
	var payload *bytes.Buffer
	if body != nil {
		payload = &bytes.Buffer{}
		if err := json.NewEncoder(payload).Encode(body); err != nil {
			return nil, err
		}
	}

	var req *http.Request
	var err error
	if payload != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	return c.http.Do(req)
}

func statusError(code int) error {
	return fmt.Errorf("api: request failed with status %d", code)
}
