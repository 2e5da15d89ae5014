package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// uazapiClient talks to the Uazapi API. Admin operations authenticate with
// the admintoken header; instance-scoped operations additionally require a
// per-instance token issued at creation time, resolved through cfg.Tokens.
type uazapiClient struct {
	baseURL    string
	adminToken string
	tokens     TokenResolver
	httpClient *http.Client
}

func newUazapiClient(cfg Config) (*uazapiClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	adminToken := strings.TrimSpace(cfg.AdminToken)
	if baseURL == "" {
		return nil, fmt.Errorf("gateway: uazapi base url is required")
	}
	if adminToken == "" {
		return nil, fmt.Errorf("gateway: uazapi admin token is required")
	}
	return &uazapiClient{
		baseURL:    baseURL,
		adminToken: adminToken,
		tokens:     cfg.Tokens,
		httpClient: httpClientOrDefault(cfg.HTTPClient),
	}, nil
}

// Provider implements Client.
func (c *uazapiClient) Provider() string { return ProviderUazapi }

func (c *uazapiClient) adminHeaders() map[string]string {
	return map[string]string{"admintoken": c.adminToken}
}

// instanceHeaders resolves the per-instance token. When none is stored the
// admin credential is sent alone; the vendor rejects operations that require
// the instance token.
func (c *uazapiClient) instanceHeaders(ctx context.Context, name string) (map[string]string, error) {
	headers := map[string]string{"admintoken": c.adminToken}
	if c.tokens == nil {
		return headers, nil
	}
	token, errToken := c.tokens.InstanceToken(ctx, name)
	if errToken != nil {
		return nil, fmt.Errorf("gateway: resolve token for %s: %w", name, errToken)
	}
	if token != "" {
		headers["token"] = token
	}
	return headers, nil
}

// ListInstances implements Client. Requires the admin credential.
func (c *uazapiClient) ListInstances(ctx context.Context) (Result, error) {
	return doRequest(ctx, c.httpClient, http.MethodGet, c.baseURL+"/instance/all", c.adminHeaders(), nil)
}

// CreateInstance implements Client. The response carries a freshly issued
// per-instance token that the caller must persist for later operations.
func (c *uazapiClient) CreateInstance(ctx context.Context, name string, opts CreateOptions) (Result, error) {
	payload := map[string]any{"name": name}
	if opts.SystemName != "" {
		payload["systemName"] = opts.SystemName
	}
	if opts.AdminField01 != "" {
		payload["adminField01"] = opts.AdminField01
	}
	if opts.AdminField02 != "" {
		payload["adminField02"] = opts.AdminField02
	}
	return doRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/instance/init", c.adminHeaders(), payload)
}

// ConnectInstance implements Client. A non-empty phone requests a numeric
// pairing code instead of a QR image.
func (c *uazapiClient) ConnectInstance(ctx context.Context, name, phone string) (Result, error) {
	headers, errHeaders := c.instanceHeaders(ctx, name)
	if errHeaders != nil {
		return Result{}, errHeaders
	}
	payload := map[string]any{}
	if phone != "" {
		payload["phone"] = phone
	}
	return doRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/instance/connect", headers, payload)
}

// GetInstanceStatus implements Client.
func (c *uazapiClient) GetInstanceStatus(ctx context.Context, name string) (Result, error) {
	headers, errHeaders := c.instanceHeaders(ctx, name)
	if errHeaders != nil {
		return Result{}, errHeaders
	}
	return doRequest(ctx, c.httpClient, http.MethodGet, c.baseURL+"/instance/status", headers, nil)
}

// RestartInstance implements Client. Uazapi has no native restart, so it is
// synthesized as disconnect-then-connect. A failed disconnect short-circuits:
// its result is returned verbatim and connect is never attempted, so the two
// steps must not be mistaken for one atomic vendor call.
func (c *uazapiClient) RestartInstance(ctx context.Context, name string) (Result, error) {
	disconnect, errDisconnect := c.DisconnectInstance(ctx, name)
	if errDisconnect != nil {
		return disconnect, errDisconnect
	}
	if !disconnect.OK {
		return disconnect, nil
	}
	return c.ConnectInstance(ctx, name, "")
}

// DisconnectInstance implements Client with logout semantics.
func (c *uazapiClient) DisconnectInstance(ctx context.Context, name string) (Result, error) {
	headers, errHeaders := c.instanceHeaders(ctx, name)
	if errHeaders != nil {
		return Result{}, errHeaders
	}
	return doRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/instance/disconnect", headers, nil)
}

// DeleteInstance implements Client. Uazapi exposes no delete here: the
// operation is approximated by disconnect only, and the instance stays
// provisioned at the gateway. Known asymmetry, kept deliberately.
func (c *uazapiClient) DeleteInstance(ctx context.Context, name string) (Result, error) {
	return c.DisconnectInstance(ctx, name)
}

// NormalizeInstance implements Client for Uazapi payload shapes. The status
// may arrive as a string, as an object with a connected flag, or as a
// top-level connected boolean.
func (c *uazapiClient) NormalizeInstance(raw map[string]any) NormalizedInstance {
	instance := rawMap(raw, "instance")

	name := rawString(raw, "name")
	if name == "" {
		name = rawString(instance, "name")
	}

	status := c.normalizeStatus(raw, instance)

	profileName := rawString(raw, "profileName")
	if profileName == "" {
		profileName = rawString(instance, "profileName")
	}
	profilePicture := rawString(raw, "profilePicUrl")
	if profilePicture == "" {
		profilePicture = rawString(instance, "profilePicUrl")
	}
	qrcode := raw["qrcode"]
	if qrcode == nil && instance != nil {
		qrcode = instance["qrcode"]
	}
	pairingCode := rawString(raw, "paircode")
	if pairingCode == "" {
		pairingCode = rawString(instance, "paircode")
	}

	return NormalizedInstance{
		Name:              name,
		Status:            status,
		Number:            rawString(instance, "owner"),
		ProfileName:       profileName,
		ProfilePictureURL: profilePicture,
		QRCode:            qrcode,
		PairingCode:       pairingCode,
		Connected:         status == StatusConnected,
		Token:             rawString(raw, "token"),
	}
}

func (c *uazapiClient) normalizeStatus(raw, instance map[string]any) Status {
	if state := rawString(raw, "status"); state != "" {
		return MapStatus(state)
	}
	if statusObj := rawMap(raw, "status"); statusObj != nil {
		if rawBool(statusObj, "connected") {
			return StatusConnected
		}
		if state := rawString(statusObj, "state", "status"); state != "" {
			return MapStatus(state)
		}
		return StatusDisconnected
	}
	if rawBool(raw, "connected") {
		return StatusConnected
	}
	if state := rawString(instance, "status"); state != "" {
		return MapStatus(state)
	}
	return StatusDisconnected
}
