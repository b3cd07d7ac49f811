package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// CheckpointPath is the route of the checkpoint API.
const CheckpointPath = "/api/progress"

var _ Store = (*HTTPClient)(nil)

// HTTPClient implements Store over a remote checkpoint API.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHTTPClient constructs a checkpoint client for the given base URL.
func NewHTTPClient(rawURL string, httpClient *http.Client, log zerolog.Logger) (*HTTPClient, error) {
	if rawURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := log.With().Str("component", "checkpoint-client").Logger()

	logger.Info().
		Str("base_url", rawURL).
		Dur("timeout", httpClient.Timeout).
		Msg("HTTP checkpoint client initialized")

	return &HTTPClient{
		baseURL:    parsed,
		httpClient: httpClient,
		log:        logger,
	}, nil
}

func (c *HTTPClient) Get(ctx context.Context, prover, contract common.Address) (Record, error) {
	u := c.endpoint()
	q := u.Query()
	q.Set("prover", prover.Hex())
	q.Set("contract", contract.Hex())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Record{}, fmt.Errorf("prepare request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("get checkpoint: %w", err)
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return Record{}, err
	}

	var body CheckpointResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return Record{}, fmt.Errorf("decode checkpoint: %w", err)
	}

	rec := DefaultRecord(prover, contract)
	if body.LastEpoch != nil {
		rec.LastEpoch = *body.LastEpoch
	}
	if body.CumulativeRewards != "" {
		amount, err := ParseAmount(body.CumulativeRewards)
		if err != nil {
			return Record{}, fmt.Errorf("decode checkpoint: %w", err)
		}
		rec.CumulativeReward = amount
	}
	if err := rec.Validate(); err != nil {
		return Record{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return rec, nil
}

func (c *HTTPClient) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	last := rec.LastEpoch
	cumulative := rec.Cumulative().String()
	payload, err := json.Marshal(CheckpointRequest{
		Prover:            rec.Prover.Hex(),
		Contract:          rec.Contract.Hex(),
		LastEpoch:         &last,
		CumulativeRewards: &cumulative,
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	u := c.endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post checkpoint: %w", err)
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		c.log.Error().Err(err).Int64("last_epoch", last).Msg("checkpoint write rejected")
		return err
	}
	return nil
}

func (c *HTTPClient) endpoint() *url.URL {
	u := *c.baseURL
	u.Path = path.Join(u.Path, CheckpointPath)
	return &u
}

func checkStatus(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("checkpoint api returned %s: %s", res.Status, bytes.TrimSpace(msg))
}
