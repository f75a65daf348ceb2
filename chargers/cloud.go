package chargers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/matkvaid/evse-load-balancer/api"
	"github.com/matkvaid/evse-load-balancer/util"
)

// cloudClient is the shared HTTP+breaker transport for the two
// cloud-API chargers (Easee, Zaptec). A hung remote endpoint opens the
// breaker rather than stalling a tick; local-transport adapters
// (Keba/Lektrico/Webasto Unite) don't get one, see SPEC_FULL.md §7.
type cloudClient struct {
	log     *util.Logger
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	baseURL string
	token   string
}

func newCloudClient(log *util.Logger, name, baseURL, token string) *cloudClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			if log != nil {
				log.WARN.Printf("%s: circuit breaker %s -> %s", cbName, from, to)
			}
		},
	})

	return &cloudClient{
		log:     log,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: breaker,
		baseURL: baseURL,
		token:   token,
	}
}

// doJSON executes method against path with an optional JSON body,
// decoding the response into out (which may be nil for fire-and-forget
// writes). Every call is guarded by the breaker.
func (c *cloudClient) doJSON(method, path string, body interface{}, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reader *bytes.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, errors.Wrap(err, "encode request body")
			}
			reader = bytes.NewReader(b)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequest(method, c.baseURL+path, reader)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "perform request")
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, errors.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, errors.Wrap(err, "decode response body")
			}
		}
		return nil, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s circuit open", api.ErrDispatchFailure, c.breaker.Name())
		}
		return err
	}
	return nil
}
