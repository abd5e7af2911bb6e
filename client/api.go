package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// APIError -> response error dari server ({status:false, message, data:{code, retry_after}})
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, http %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s (http %d)", e.Message, e.StatusCode)
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// API -> client HTTP untuk endpoint customer satu restaurant
type API struct {
	BaseURL string
	Slug    string
	HTTP    *http.Client
	// Token session, diisi setelah VerifyCode
	SessionToken string
}

func NewAPI(baseURL, slug string) *API {
	return &API{
		BaseURL: baseURL,
		Slug:    slug,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.SessionToken != "" {
		req.Header.Set("X-Session-Token", a.SessionToken)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "invalid response body"}
	}
	if resp.StatusCode >= 300 || !env.Status {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.Message}
		var detail struct {
			Code       string `json:"code"`
			RetryAfter int    `json:"retry_after"`
		}
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &detail) == nil {
			apiErr.Code = detail.Code
			apiErr.RetryAfter = detail.RetryAfter
		}
		if apiErr.RetryAfter == 0 {
			apiErr.RetryAfter, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
		}
		return apiErr
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (a *API) publicPath(format string, args ...interface{}) string {
	return "/api/r/" + url.PathEscape(a.Slug) + fmt.Sprintf(format, args...)
}

// TableStatus -> GET status meja
func (a *API) TableStatus(ctx context.Context, qrCode string, out interface{}) error {
	return a.do(ctx, http.MethodGet, a.publicPath("/tables/%s/status", url.PathEscape(qrCode)), nil, out)
}

// CheckSession -> apakah device ini sudah punya session aktif di meja
func (a *API) CheckSession(ctx context.Context, qrCode, fingerprint string) (bool, *SessionInfo, error) {
	var out struct {
		HasSession bool         `json:"has_session"`
		Session    *SessionInfo `json:"session"`
	}
	path := a.publicPath("/tables/%s/session?fingerprint=%s", url.PathEscape(qrCode), url.QueryEscape(fingerprint))
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, nil, err
	}
	return out.HasSession, out.Session, nil
}

type RegisterRequest struct {
	QRCode            string   `json:"qr_code"`
	CustomerName      string   `json:"customer_name"`
	CustomerPhone     string   `json:"customer_phone"`
	DeviceFingerprint string   `json:"device_fingerprint"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
}

func (a *API) CreateSession(ctx context.Context, req RegisterRequest) (*SessionInfo, error) {
	var out struct {
		Session SessionInfo `json:"session"`
	}
	if err := a.do(ctx, http.MethodPost, a.publicPath("/sessions"), req, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

func (a *API) RequestCode(ctx context.Context, qrCode, phone string) error {
	return a.do(ctx, http.MethodPost, a.publicPath("/sessions/request-code"),
		map[string]string{"qr_code": qrCode, "phone": phone}, nil)
}

// VerifyCode -> sukses mengisi SessionToken untuk request berikutnya
func (a *API) VerifyCode(ctx context.Context, qrCode, phone, code, fingerprint string) (*SessionInfo, string, error) {
	var out struct {
		Session SessionInfo `json:"session"`
		Token   string      `json:"session_token"`
	}
	err := a.do(ctx, http.MethodPost, a.publicPath("/sessions/verify"), map[string]string{
		"qr_code":            qrCode,
		"phone":              phone,
		"code":               code,
		"device_fingerprint": fingerprint,
	}, &out)
	if err != nil {
		return nil, "", err
	}
	a.SessionToken = out.Token
	return &out.Session, out.Token, nil
}

type OrderItemRequest struct {
	MenuItemID uint   `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
	ExtraIDs   []uint `json:"extra_ids,omitempty"`
}

// orderResponse -> bentuk order dari server, dipetakan ke TrackedOrder
type orderResponse struct {
	ID          uint   `json:"id"`
	OrderNumber int64  `json:"order_number"`
	Status      string `json:"status"`
	Total       string `json:"total"`
	Items       []struct {
		ID     uint   `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o orderResponse) tracked() TrackedOrder {
	t := TrackedOrder{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Total:       o.Total,
		UpdatedAt:   o.UpdatedAt,
	}
	for _, it := range o.Items {
		t.Items = append(t.Items, TrackedItem{ID: it.ID, Name: it.Name, Status: it.Status})
	}
	return t
}

func (a *API) CreateOrder(ctx context.Context, items []OrderItemRequest, notes string) (*TrackedOrder, error) {
	var out orderResponse
	body := map[string]interface{}{"items": items, "notes": notes}
	if err := a.do(ctx, http.MethodPost, "/api/session/orders", body, &out); err != nil {
		return nil, err
	}
	t := out.tracked()
	return &t, nil
}

// ListOrders -> refetch penuh, dipakai setelah reconnect
func (a *API) ListOrders(ctx context.Context) ([]TrackedOrder, error) {
	var out []orderResponse
	if err := a.do(ctx, http.MethodGet, "/api/session/orders", nil, &out); err != nil {
		return nil, err
	}
	orders := make([]TrackedOrder, 0, len(out))
	for _, o := range out {
		orders = append(orders, o.tracked())
	}
	return orders, nil
}

type InteractionAck struct {
	Action   string `json:"action"`
	Cooldown int    `json:"cooldown"`
}

func (a *API) CallWaiter(ctx context.Context, reason string) (*InteractionAck, error) {
	var out InteractionAck
	if err := a.do(ctx, http.MethodPost, "/api/session/call-waiter", map[string]string{"reason": reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) RequestBill(ctx context.Context) (*InteractionAck, error) {
	var out InteractionAck
	if err := a.do(ctx, http.MethodPost, "/api/session/request-bill", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resync -> refetch order lalu ganti state store, untuk dipasang di Socket.OnReconnect
func (a *API) Resync(ctx context.Context, store *SessionStore) error {
	orders, err := a.ListOrders(ctx)
	if err != nil {
		return err
	}
	return store.ReplaceOrders(orders)
}
