package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
)

// InstagramAdapter publishes through the Graph API content-publishing
// flow: one media container per item, then a media_publish call that
// promotes the container to a live post. Carousels add a parent container
// referencing the item containers.
type InstagramAdapter struct {
	baseURL string
	client  *http.Client
}

// instagramMaxCarouselItems is the Graph API carousel ceiling. Posts over
// the limit are rejected, never truncated.
const instagramMaxCarouselItems = 10

func NewInstagramAdapter() *InstagramAdapter {
	return &InstagramAdapter{
		baseURL: "https://graph.instagram.com/v21.0",
		client:  defaultHTTPClient(),
	}
}

func (ig *InstagramAdapter) Platform() string {
	return "instagram"
}

type instagramErrorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FbtraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

func (ig *InstagramAdapter) Publish(ctx context.Context, cred Credential, content PostContent) (*PublishResult, error) {
	count := len(content.MediaURLs)

	if count == 0 {
		return nil, fmt.Errorf("instagram requires at least one media item")
	}
	if count > instagramMaxCarouselItems {
		return nil, fmt.Errorf("instagram carousel supports at most %d items, got %d", instagramMaxCarouselItems, count)
	}

	var creationID string
	var err error

	if count == 1 {
		creationID, err = ig.createContainer(ctx, cred, content.MediaURLs[0], content.Text, false)
	} else {
		creationID, err = ig.createCarousel(ctx, cred, content)
	}
	if err != nil {
		return nil, err
	}

	postID, err := ig.publishContainer(ctx, cred, creationID)
	if err != nil {
		return nil, err
	}

	return &PublishResult{PlatformPostID: postID, PublishedAt: time.Now()}, nil
}

// createContainer runs phase one for a single media item. Carousel items
// pass carouselItem = true and carry no caption of their own.
func (ig *InstagramAdapter) createContainer(ctx context.Context, cred Credential, mediaURL, caption string, carouselItem bool) (string, error) {
	payload := map[string]interface{}{
		"access_token": cred.AccessToken,
	}
	if isVideoURL(mediaURL) {
		payload["video_url"] = mediaURL
		payload["media_type"] = "REELS"
	} else {
		payload["image_url"] = mediaURL
	}
	if carouselItem {
		payload["is_carousel_item"] = true
	} else {
		payload["caption"] = caption
	}

	endpoint := fmt.Sprintf("%s/%s/media", ig.baseURL, cred.AccountID)
	return ig.postForID(ctx, endpoint, payload)
}

func (ig *InstagramAdapter) createCarousel(ctx context.Context, cred Credential, content PostContent) (string, error) {
	containerIDs := make([]string, 0, len(content.MediaURLs))

	for _, mediaURL := range content.MediaURLs {
		id, err := ig.createContainer(ctx, cred, mediaURL, "", true)
		if err != nil {
			return "", fmt.Errorf("carousel item: %w", err)
		}
		containerIDs = append(containerIDs, id)
	}

	payload := map[string]interface{}{
		"media_type":   "CAROUSEL",
		"caption":      content.Text,
		"children":     containerIDs,
		"access_token": cred.AccessToken,
	}

	endpoint := fmt.Sprintf("%s/%s/media", ig.baseURL, cred.AccountID)
	return ig.postForID(ctx, endpoint, payload)
}

func (ig *InstagramAdapter) publishContainer(ctx context.Context, cred Credential, creationID string) (string, error) {
	payload := map[string]interface{}{
		"creation_id":  creationID,
		"access_token": cred.AccessToken,
	}

	endpoint := fmt.Sprintf("%s/%s/media_publish", ig.baseURL, cred.AccountID)
	return ig.postForID(ctx, endpoint, payload)
}

// postForID issues one Graph API call and returns the id field of the
// response, normalizing the Graph error envelope on non-200s.
func (ig *InstagramAdapter) postForID(ctx context.Context, endpoint string, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ig.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("instagram request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope instagramErrorEnvelope
		if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Error.Message != "" {
			return "", fmt.Errorf("instagram: %s (type %s, code %d)",
				envelope.Error.Message, envelope.Error.Type, envelope.Error.Code)
		}
		return "", fmt.Errorf("instagram: unexpected status code %d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("instagram: no media ID returned")
	}

	return result.ID, nil
}

func (ig *InstagramAdapter) ValidateCredential(ctx context.Context, cred Credential) bool {
	endpoint := fmt.Sprintf("%s/%s?fields=id,username&access_token=%s",
		ig.baseURL, cred.AccountID, url.QueryEscape(cred.AccessToken))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		slog.Info(err.Error())
		return false
	}

	resp, err := ig.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (ig *InstagramAdapter) FetchEngagement(ctx context.Context, cred Credential, platformPostID string) (*models.EngagementSnapshot, error) {
	endpoint := fmt.Sprintf("%s/%s/insights?metric=impressions,reach,likes,comments,shares,saved&access_token=%s",
		ig.baseURL, platformPostID, url.QueryEscape(cred.AccessToken))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := ig.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("instagram request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instagram: unexpected status code %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	snapshot := &models.EngagementSnapshot{FetchedAt: time.Now()}
	for _, metric := range result.Data {
		if len(metric.Values) == 0 {
			continue
		}
		value := metric.Values[0].Value
		switch metric.Name {
		case "impressions":
			snapshot.Impressions = value
		case "reach":
			snapshot.Reach = value
		case "likes":
			snapshot.Likes = value
		case "comments":
			snapshot.Comments = value
		case "shares":
			snapshot.Shares = value
		case "saved":
			snapshot.Saves = value
		}
	}
	return snapshot, nil
}
