// services/coc_client.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	// The official API allows bursts but throttles sustained traffic;
	// staying under ~10 req/s keeps large clan lists from tripping 429s.
	cocRateLimit = 10
	cocRateBurst = 20

	cocMaxAttempts    = 3
	cocRequestTimeout = 12 * time.Second
)

// CoCClient talks to the Clash of Clans REST API. Absent data (404, a
// malformed payload, or retries exhausted against 429/5xx/timeouts) is
// reported as a nil document, not an error — a poll cycle treats all of
// those the same way and moves on. The only errors surfaced are context
// cancellations.
type CoCClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter

	// backoffUnit scales the retry delays; tests shrink it.
	backoffUnit time.Duration
}

func NewCoCClient(baseURL, apiKey string) *CoCClient {
	return &CoCClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		rateLimiter: rate.NewLimiter(rate.Limit(cocRateLimit), cocRateBurst),
		backoffUnit: time.Second,
		httpClient: &http.Client{
			Timeout: cocRequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// escapeTag makes a game tag safe for a URL path segment ("#ABC" → "%23ABC").
func escapeTag(tag string) string {
	return url.PathEscape(tag)
}

// get fetches one document. Retry policy: 429 and timeouts back off
// attempt×2×unit, 5xx backs off attempt×3×unit, at most three attempts;
// 404 and every other failure mode return nil immediately.
func (c *CoCClient) get(ctx context.Context, path string) (json.RawMessage, error) {
	fullURL := c.baseURL + path

	for attempt := 1; attempt <= cocMaxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			log.Printf("[CoC] ❌ Failed to build request for %s: %v", path, err)
			return nil, nil
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() && attempt < cocMaxAttempts {
				log.Printf("[CoC] ⏱️ Timeout on %s (attempt %d/%d), retrying...", path, attempt, cocMaxAttempts)
				if !c.sleep(ctx, time.Duration(attempt)*2*c.backoffUnit) {
					return nil, ctx.Err()
				}
				continue
			}
			log.Printf("[CoC] ❌ Request to %s failed: %v", path, err)
			return nil, nil
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				log.Printf("[CoC] ❌ Failed to read response for %s: %v", path, readErr)
				return nil, nil
			}
			return body, nil

		case resp.StatusCode == http.StatusNotFound:
			// Event absent, not an error.
			return nil, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt < cocMaxAttempts {
				log.Printf("[CoC] 🚦 Rate limited on %s (attempt %d/%d), backing off...", path, attempt, cocMaxAttempts)
				if !c.sleep(ctx, time.Duration(attempt)*2*c.backoffUnit) {
					return nil, ctx.Err()
				}
				continue
			}

		case resp.StatusCode >= 500:
			if attempt < cocMaxAttempts {
				log.Printf("[CoC] 🔥 Upstream %d on %s (attempt %d/%d), backing off...", resp.StatusCode, path, attempt, cocMaxAttempts)
				if !c.sleep(ctx, time.Duration(attempt)*3*c.backoffUnit) {
					return nil, ctx.Err()
				}
				continue
			}

		default:
			log.Printf("[CoC] ❌ Unexpected %d for %s", resp.StatusCode, path)
			return nil, nil
		}
	}

	log.Printf("[CoC] ⚠️ Giving up on %s after %d attempts", path, cocMaxAttempts)
	return nil, nil
}

// sleep waits d unless the context is cancelled first.
func (c *CoCClient) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// getJSON decodes a fetched document into out; a nil document or a decode
// failure both leave out untouched and report absence.
func (c *CoCClient) getJSON(ctx context.Context, path string, out any) (bool, error) {
	raw, err := c.get(ctx, path)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("[CoC] ❌ Malformed payload for %s: %v", path, err)
		return false, nil
	}
	return true, nil
}

// CurrentWar fetches the clan's current war document. The same endpoint
// serves CWL battle-day wars; callers separate the two by allotment.
func (c *CoCClient) CurrentWar(ctx context.Context, clanTag string) (*WarDocument, error) {
	var war WarDocument
	ok, err := c.getJSON(ctx, "/clans/"+escapeTag(clanTag)+"/currentwar", &war)
	if !ok {
		return nil, err
	}
	return &war, nil
}

// LeagueGroup fetches the clan's CWL group with its round/war-tag listing.
func (c *CoCClient) LeagueGroup(ctx context.Context, clanTag string) (*LeagueGroup, error) {
	var group LeagueGroup
	ok, err := c.getJSON(ctx, "/clans/"+escapeTag(clanTag)+"/currentwar/leaguegroup", &group)
	if !ok {
		return nil, err
	}
	return &group, nil
}

// LeagueWar resolves a single CWL war by its war tag.
func (c *CoCClient) LeagueWar(ctx context.Context, warTag string) (*WarDocument, error) {
	var war WarDocument
	ok, err := c.getJSON(ctx, "/clanwarleagues/wars/"+escapeTag(warTag), &war)
	if !ok {
		return nil, err
	}
	return &war, nil
}

// RaidSeasons fetches the clan's capital raid season list, newest first.
func (c *CoCClient) RaidSeasons(ctx context.Context, clanTag string) (*RaidSeasonList, error) {
	var seasons RaidSeasonList
	ok, err := c.getJSON(ctx, "/clans/"+escapeTag(clanTag)+"/capitalraidseasons?limit=1", &seasons)
	if !ok {
		return nil, err
	}
	return &seasons, nil
}

// Clan fetches clan info including the member list.
func (c *CoCClient) Clan(ctx context.Context, clanTag string) (*ClanInfo, error) {
	var clan ClanInfo
	ok, err := c.getJSON(ctx, "/clans/"+escapeTag(clanTag), &clan)
	if !ok {
		return nil, err
	}
	return &clan, nil
}

// Player fetches a single player profile with its clan affiliation.
func (c *CoCClient) Player(ctx context.Context, tag string) (*Player, error) {
	var player Player
	ok, err := c.getJSON(ctx, "/players/"+escapeTag(tag), &player)
	if !ok {
		return nil, err
	}
	return &player, nil
}
