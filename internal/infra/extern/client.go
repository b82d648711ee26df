package extern

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"seatbridge/internal/pkg/config"
	"seatbridge/internal/pkg/errs"
	"seatbridge/internal/usecase/shared"

	"github.com/google/uuid"
)

var (
	// ErrSeatsUnavailable: the authority rejected the claim because at
	// least one seat is already held.
	ErrSeatsUnavailable = errs.New("seats unavailable at authority")
	// ErrTimeout: the call exceeded its deadline. The remote effect is
	// UNKNOWN - the authority may have committed. Callers must treat
	// this as ambiguous, never as definite failure.
	ErrTimeout = errs.New("authority call timed out")
	// ErrService: any other authority-side failure.
	ErrService = errs.New("authority service error")

	errEmptySeatList = errs.New("seat list must not be empty")
)

const maxResponseBytes = 1 << 20

// Client talks to the external seat-allocation authority. The authority
// is the sole source of truth for seat occupancy; the client owns no
// state and every call is bounded by a fixed timeout.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	timeout    time.Duration
}

func NewClient(cfg config.AuthorityConfig) shared.ReservationAuthority {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		timeout:    cfg.Timeout,
	}
}

type bookRequest struct {
	Seats    []string  `json:"seats"`
	OrderRef uuid.UUID `json:"order_ref"`
}

type releaseRequest struct {
	Seats []string `json:"seats"`
}

type occupancyResponse struct {
	Occupied []struct {
		SeatID   string    `json:"seat_id"`
		OrderRef uuid.UUID `json:"order_ref"`
	} `json:"occupied"`
}

func (c *Client) Book(ctx context.Context, eventKey string, seatIDs []string, orderRef uuid.UUID) error {
	if len(seatIDs) == 0 {
		return errEmptySeatList
	}

	endpoint := fmt.Sprintf("%s/events/%s/bookings", c.baseURL, url.PathEscape(eventKey))
	status, _, err := c.do(ctx, http.MethodPost, endpoint, bookRequest{Seats: seatIDs, OrderRef: orderRef})
	if err != nil {
		return err
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusConflict:
		return ErrSeatsUnavailable
	default:
		return errs.Mark(fmt.Errorf("authority returned status %d", status), ErrService)
	}
}

func (c *Client) Release(ctx context.Context, eventKey string, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return errEmptySeatList
	}

	endpoint := fmt.Sprintf("%s/events/%s/releases", c.baseURL, url.PathEscape(eventKey))
	status, _, err := c.do(ctx, http.MethodPost, endpoint, releaseRequest{Seats: seatIDs})
	if err != nil {
		return err
	}

	// 404 means the authority holds no matching occupancy; release is an
	// idempotent no-op in that case.
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return nil
	default:
		return errs.Mark(fmt.Errorf("authority returned status %d", status), ErrService)
	}
}

func (c *Client) Occupancy(ctx context.Context, eventKey string, seatIDs []string) (map[string]uuid.UUID, error) {
	if len(seatIDs) == 0 {
		return nil, errEmptySeatList
	}

	endpoint := fmt.Sprintf("%s/events/%s/occupancy?seats=%s",
		c.baseURL, url.PathEscape(eventKey), url.QueryEscape(strings.Join(seatIDs, ",")))
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, errs.Mark(fmt.Errorf("authority returned status %d", status), ErrService)
	}

	var parsed occupancyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Mark(errs.Wrap(err, "failed to decode occupancy response"), ErrService)
	}

	occupied := make(map[string]uuid.UUID, len(parsed.Occupied))
	for _, o := range parsed.Occupied {
		occupied[o.SeatID] = o.OrderRef
	}

	return occupied, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, errs.Mark(err, ErrService)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, errs.Mark(err, ErrService)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, errs.Mark(err, ErrTimeout)
		}
		return 0, nil, errs.Mark(err, ErrService)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return 0, nil, errs.Mark(err, ErrTimeout)
		}
		return 0, nil, errs.Mark(err, ErrService)
	}

	return resp.StatusCode, body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
