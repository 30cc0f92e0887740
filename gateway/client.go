package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pixtip/internal"
	"pixtip/models"
	"pixtip/utility"
)

const (
	paymentsEndpoint   = "/v1/payments"
	paymentMethodPix   = "pix"
	defaultPayerDomain = "musicalmenu.com"
	maxResponseSize    = 1 << 20
)

type Client struct {
	client      *http.Client
	url         string
	token       string
	payerDomain string
	logger      internal.LogHandler
}

func New(baseUrl, accessToken string, timeout time.Duration) *Client {
	return &Client{
		client:      &http.Client{Timeout: timeout},
		url:         strings.TrimRight(baseUrl, "/"),
		token:       strings.TrimSpace(accessToken),
		payerDomain: defaultPayerDomain,
	}
}

func (c *Client) SetPayerDomain(domain string) {
	if domain != "" {
		c.payerDomain = domain
	}
}

func (c *Client) SetLogger(logger internal.LogHandler) {
	c.logger = logger
}

type payer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

type chargeBody struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodId   string      `json:"payment_method_id"`
	Payer             payer       `json:"payer"`
}

// paymentId accepts both numeric and string identifiers
type paymentId string

func (t *paymentId) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*t = paymentId(s)
	return nil
}

type paymentResponse struct {
	Id                 paymentId  `json:"id"`
	Status             string     `json:"status"`
	Message            string     `json:"message"`
	Error              string     `json:"error"`
	PointOfInteraction struct {
		TransactionData struct {
			QrCode string `json:"qr_code"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (r *paymentResponse) errorMessage() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// CreateCharge issues a dynamic pix charge and returns its copy-paste payload
func (c *Client) CreateCharge(ctx context.Context, request models.ChargeRequest) (*models.GatewayCharge, error) {
	if c.token == "" {
		return nil, &Error{Kind: KindUnauthorized, Message: "access token is empty"}
	}
	idempotencyKey := request.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = utility.NewUUID()
	}
	body := chargeBody{
		TransactionAmount: json.Number(request.Amount.StringFixed(2)),
		Description:       request.Description,
		PaymentMethodId:   paymentMethodPix,
		Payer: payer{
			Email:     fmt.Sprintf("payment_%s@%s", utility.NewUUID(), c.payerDomain),
			FirstName: request.PayerName,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Message: "encoding request", Err: err}
	}

	response, err := c.doRequest(ctx, http.MethodPost, paymentsEndpoint, data, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if response.Id == "" {
		return nil, &Error{Kind: KindMalformed, Message: "response without payment id"}
	}
	payload := response.PointOfInteraction.TransactionData.QrCode
	if payload == "" {
		return nil, &Error{Kind: KindMalformed, Message: "response without qr code"}
	}
	return &models.GatewayCharge{
		TrackingId: string(response.Id),
		Payload:    payload,
		Status:     mapStatus(response.Status),
	}, nil
}

// PollStatus reads the current settlement status of a charge
func (c *Client) PollStatus(ctx context.Context, trackingId string) (models.ChargeStatus, error) {
	if trackingId == "" {
		return "", &Error{Kind: KindRejected, Message: "empty tracking id"}
	}
	response, err := c.doRequest(ctx, http.MethodGet, paymentsEndpoint+"/"+url.PathEscape(trackingId), nil, "")
	if err != nil {
		return "", err
	}
	if response.Status == "" {
		return "", &Error{Kind: KindMalformed, Message: "response without status"}
	}
	return mapStatus(response.Status), nil
}

func mapStatus(status string) models.ChargeStatus {
	switch status {
	case "approved":
		return models.ChargeStatusApproved
	case "pending", "in_process", "authorized":
		return models.ChargeStatusPending
	default:
		return models.ChargeStatusOther
	}
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte, idempotencyKey string) (*paymentResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+endpoint, reader)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "creating request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}
	if c.logger != nil && body != nil {
		c.logger.RawDataEvent("GATEWAY >>", string(body))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "sending request", Err: err}
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}
	if c.logger != nil {
		c.logger.RawDataEvent("GATEWAY <<", string(data))
	}

	var response paymentResponse
	decodeErr := json.Unmarshal(data, &response)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, response.errorMessage())
	}
	if decodeErr != nil {
		return nil, &Error{Kind: KindMalformed, StatusCode: resp.StatusCode, Message: "decoding response", Err: decodeErr}
	}
	return &response, nil
}
