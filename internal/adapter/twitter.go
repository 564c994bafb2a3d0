package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
)

// TwitterAdapter uploads media through the v1.1 upload endpoint and then
// creates the tweet with the v2 API.
type TwitterAdapter struct {
	apiURL    string
	uploadURL string
	client    *http.Client
}

// twitterMaxMediaItems is the per-tweet media ceiling. Over-limit posts
// are rejected, never truncated.
const twitterMaxMediaItems = 4

func NewTwitterAdapter() *TwitterAdapter {
	return &TwitterAdapter{
		apiURL:    "https://api.twitter.com",
		uploadURL: "https://upload.twitter.com/1.1/media/upload.json",
		client:    defaultHTTPClient(),
	}
}

func (tw *TwitterAdapter) Platform() string {
	return "twitter"
}

func (tw *TwitterAdapter) Publish(ctx context.Context, cred Credential, content PostContent) (*PublishResult, error) {
	count := len(content.MediaURLs)

	if count == 0 {
		return nil, fmt.Errorf("twitter requires at least one media item")
	}
	if count > twitterMaxMediaItems {
		return nil, fmt.Errorf("twitter supports at most %d media items, got %d", twitterMaxMediaItems, count)
	}

	mediaIDs := make([]string, 0, count)
	for _, mediaURL := range content.MediaURLs {
		mediaID, err := tw.uploadMedia(ctx, cred, mediaURL)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	payload := map[string]interface{}{
		"text": content.Text,
		"media": map[string]interface{}{
			"media_ids": mediaIDs,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", tw.apiURL+"/2/tweets", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := tw.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter request error: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
		Detail string `json:"detail"`
		Errors []struct {
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	if result.Data.ID == "" {
		if len(result.Errors) > 0 && result.Errors[0].Detail != "" {
			return nil, fmt.Errorf("twitter: %s", result.Errors[0].Detail)
		}
		if result.Detail != "" {
			return nil, fmt.Errorf("twitter: %s", result.Detail)
		}
		return nil, fmt.Errorf("twitter: failed to create tweet (status %d)", resp.StatusCode)
	}

	return &PublishResult{PlatformPostID: result.Data.ID, PublishedAt: time.Now()}, nil
}

// uploadMedia fetches the media bytes and pushes them to the v1.1 upload
// endpoint, returning the media id the tweet will reference.
func (tw *TwitterAdapter) uploadMedia(ctx context.Context, cred Credential, mediaURL string) (string, error) {
	fetchReq, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	fetchResp, err := tw.client.Do(fetchReq)
	if err != nil {
		return "", fmt.Errorf("twitter: failed to fetch media %s: %w", mediaURL, err)
	}
	defer fetchResp.Body.Close()

	if fetchResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("twitter: failed to fetch media %s (status %d)", mediaURL, fetchResp.StatusCode)
	}

	mediaBytes, err := io.ReadAll(fetchResp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading media body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", tw.uploadURL, bytes.NewReader(mediaBytes))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := tw.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitter request error: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.MediaIDString == "" {
		return "", fmt.Errorf("twitter: media upload failed (status %d)", resp.StatusCode)
	}

	return result.MediaIDString, nil
}

func (tw *TwitterAdapter) ValidateCredential(ctx context.Context, cred Credential) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", tw.apiURL+"/2/users/me", nil)
	if err != nil {
		slog.Info(err.Error())
		return false
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := tw.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}
	return result.Data.ID != ""
}

func (tw *TwitterAdapter) FetchEngagement(ctx context.Context, cred Credential, platformPostID string) (*models.EngagementSnapshot, error) {
	endpoint := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=public_metrics", tw.apiURL, platformPostID)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := tw.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitter: unexpected status code %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			PublicMetrics struct {
				ImpressionCount int64 `json:"impression_count"`
				LikeCount       int64 `json:"like_count"`
				ReplyCount      int64 `json:"reply_count"`
				RetweetCount    int64 `json:"retweet_count"`
				BookmarkCount   int64 `json:"bookmark_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	metrics := result.Data.PublicMetrics
	return &models.EngagementSnapshot{
		Impressions: metrics.ImpressionCount,
		Reach:       metrics.ImpressionCount,
		Likes:       metrics.LikeCount,
		Comments:    metrics.ReplyCount,
		Shares:      metrics.RetweetCount,
		Saves:       metrics.BookmarkCount,
		FetchedAt:   time.Now(),
	}, nil
}
