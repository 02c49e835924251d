// Package discovery finds the (deployment, block) keys worth checking this
// cycle by querying the graphix GraphQL API for every known indexer's recent
// POI agreement ratios.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/edgeandnode/graph-ixi/pkg/poi"
)

type Client struct {
	BaseURL  string
	PageSize int
	HTTP     *http.Client
	Log      *slog.Logger
}

func New(baseURL string, pageSize int, log *slog.Logger) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		PageSize: pageSize,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		Log:      log,
	}
}

// CandidateKeys returns the deduplicated keys to check, in deterministic
// order. Any API failure is a cycle-level error: with no candidate source
// there is nothing to do, and the scheduler retries the whole cycle later.
func (c *Client) CandidateKeys(ctx context.Context) ([]poi.Key, error) {
	indexers, err := c.indexers(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover indexers: %w", err)
	}
	if len(indexers) == 0 {
		c.Log.Warn("no indexers found")
		return nil, nil
	}

	seen := make(map[poi.Key]struct{})
	for _, addr := range indexers {
		keys, err := c.recentKeys(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("discover submissions for %s: %w", addr, err)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}

	out := make([]poi.Key, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Deployment != out[j].Deployment {
			return out[i].Deployment < out[j].Deployment
		}
		return out[i].Block < out[j].Block
	})
	return out, nil
}

func (c *Client) indexers(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`query { indexers(limit: %d) { address } }`, c.PageSize)
	var out struct {
		Data struct {
			Indexers []struct {
				Address string `json:"address"`
			} `json:"indexers"`
		} `json:"data"`
	}
	if err := c.post(ctx, query, &out); err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(out.Data.Indexers))
	for _, ix := range out.Data.Indexers {
		addrs = append(addrs, ix.Address)
	}
	return addrs, nil
}

func (c *Client) recentKeys(ctx context.Context, indexerAddress string) ([]poi.Key, error) {
	query := fmt.Sprintf(`query {
  poiAgreementRatios(indexerAddress: %q) {
    poi {
      block { number }
      deployment { cid }
    }
  }
}`, indexerAddress)
	var out struct {
		Data struct {
			Ratios []struct {
				Poi struct {
					Block struct {
						Number int64 `json:"number"`
					} `json:"block"`
					Deployment struct {
						CID string `json:"cid"`
					} `json:"deployment"`
				} `json:"poi"`
			} `json:"poiAgreementRatios"`
		} `json:"data"`
	}
	if err := c.post(ctx, query, &out); err != nil {
		return nil, err
	}
	keys := make([]poi.Key, 0, len(out.Data.Ratios))
	for _, r := range out.Data.Ratios {
		keys = append(keys, poi.Key{Deployment: r.Poi.Deployment.CID, Block: r.Poi.Block.Number})
	}
	return keys, nil
}

func (c *Client) post(ctx context.Context, query string, dst any) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("graphix api returned %d", resp.StatusCode)
	}

	var envelope struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql errors: %s", envelope.Errors[0].Message)
	}
	return json.Unmarshal(raw, dst)
}
