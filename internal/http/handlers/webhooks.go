package handlers

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/webhook"
)

// WebhookHandler handles the webhook API endpoints.
type WebhookHandler struct {
	dispatcher *webhook.Dispatcher
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(d *webhook.Dispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: d}
}

// Register registers the webhook routes with the API.
func (h *WebhookHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listWebhooks",
		Method:      "GET",
		Path:        "/api/webhooks",
		Summary:     "List webhooks",
		Tags:        []string{"Webhooks"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "createWebhook",
		Method:        "POST",
		Path:          "/api/webhooks",
		Summary:       "Register a webhook",
		DefaultStatus: 201,
		Tags:          []string{"Webhooks"},
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "getWebhook",
		Method:      "GET",
		Path:        "/api/webhooks/{id}",
		Summary:     "Get a webhook",
		Tags:        []string{"Webhooks"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "updateWebhook",
		Method:      "PUT",
		Path:        "/api/webhooks/{id}",
		Summary:     "Update a webhook",
		Tags:        []string{"Webhooks"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "deleteWebhook",
		Method:      "DELETE",
		Path:        "/api/webhooks/{id}",
		Summary:     "Remove a webhook",
		Tags:        []string{"Webhooks"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "testWebhook",
		Method:      "POST",
		Path:        "/api/webhooks/{id}/test",
		Summary:     "Send a test delivery",
		Tags:        []string{"Webhooks"},
	}, h.Test)
}

// ListWebhooksInput is the input for listing webhooks.
type ListWebhooksInput struct{}

// ListWebhooksOutput is the output for listing webhooks.
type ListWebhooksOutput struct {
	Body struct {
		Webhooks []*models.WebhookConfig `json:"webhooks"`
	}
}

// List returns all registered webhooks.
func (h *WebhookHandler) List(ctx context.Context, input *ListWebhooksInput) (*ListWebhooksOutput, error) {
	resp := &ListWebhooksOutput{}
	resp.Body.Webhooks = h.dispatcher.List()
	if resp.Body.Webhooks == nil {
		resp.Body.Webhooks = []*models.WebhookConfig{}
	}
	return resp, nil
}

// CreateWebhookInput is the input for registering a webhook.
type CreateWebhookInput struct {
	Body CreateWebhookRequest
}

// WebhookOutput wraps a single webhook config.
type WebhookOutput struct {
	Body models.WebhookConfig
}

// Create registers and persists a new webhook.
func (h *WebhookHandler) Create(ctx context.Context, input *CreateWebhookInput) (*WebhookOutput, error) {
	cfg := input.Body.ToModel()
	if err := h.dispatcher.Add(cfg); err != nil {
		return nil, huma.Error500InternalServerError("could not persist webhook", err)
	}
	return &WebhookOutput{Body: *cfg}, nil
}

// WebhookIDInput identifies a webhook by path parameter.
type WebhookIDInput struct {
	ID string `path:"id" doc:"Webhook ID"`
}

// Get returns a webhook by ID.
func (h *WebhookHandler) Get(ctx context.Context, input *WebhookIDInput) (*WebhookOutput, error) {
	cfg, ok := h.dispatcher.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("webhook %q not found", input.ID))
	}
	return &WebhookOutput{Body: *cfg}, nil
}

// UpdateWebhookInput is the input for updating a webhook.
type UpdateWebhookInput struct {
	ID   string `path:"id" doc:"Webhook ID"`
	Body UpdateWebhookRequest
}

// Update applies a partial update to a webhook.
func (h *WebhookHandler) Update(ctx context.Context, input *UpdateWebhookInput) (*WebhookOutput, error) {
	cfg, ok := h.dispatcher.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("webhook %q not found", input.ID))
	}

	updated := *cfg
	input.Body.ApplyToModel(&updated)
	if err := h.dispatcher.Update(&updated); err != nil {
		return nil, huma.Error500InternalServerError("could not persist webhook", err)
	}
	return &WebhookOutput{Body: updated}, nil
}

// DeleteWebhookOutput is the output for removing a webhook.
type DeleteWebhookOutput struct {
	Body struct {
		Removed bool `json:"removed"`
	}
}

// Delete removes a webhook.
func (h *WebhookHandler) Delete(ctx context.Context, input *WebhookIDInput) (*DeleteWebhookOutput, error) {
	if err := h.dispatcher.Remove(input.ID); err != nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("webhook %q not found", input.ID))
	}

	resp := &DeleteWebhookOutput{}
	resp.Body.Removed = true
	return resp, nil
}

// TestWebhookOutput is the output for a test delivery.
type TestWebhookOutput struct {
	Body struct {
		Delivered bool `json:"delivered"`
	}
}

// Test sends a synchronous test delivery, bypassing event filters.
func (h *WebhookHandler) Test(ctx context.Context, input *WebhookIDInput) (*TestWebhookOutput, error) {
	if err := h.dispatcher.Test(input.ID); err != nil {
		return nil, huma.Error502BadGateway("test delivery failed", err)
	}

	resp := &TestWebhookOutput{}
	resp.Body.Delivered = true
	return resp, nil
}
