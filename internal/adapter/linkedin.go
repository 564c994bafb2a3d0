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

// LinkedinAdapter registers one upload per media item, pushes the bytes,
// then creates a ugcPost referencing the uploaded assets.
type LinkedinAdapter struct {
	baseURL string
	client  *http.Client
}

// linkedinMaxMediaItems is the ugcPost image ceiling. Over-limit posts
// are rejected, never truncated.
const linkedinMaxMediaItems = 9

func NewLinkedinAdapter() *LinkedinAdapter {
	return &LinkedinAdapter{
		baseURL: "https://api.linkedin.com",
		client:  defaultHTTPClient(),
	}
}

func (li *LinkedinAdapter) Platform() string {
	return "linkedin"
}

func (li *LinkedinAdapter) Publish(ctx context.Context, cred Credential, content PostContent) (*PublishResult, error) {
	count := len(content.MediaURLs)

	if count == 0 {
		return nil, fmt.Errorf("linkedin requires at least one media item")
	}
	if count > linkedinMaxMediaItems {
		return nil, fmt.Errorf("linkedin supports at most %d media items, got %d", linkedinMaxMediaItems, count)
	}

	personURN := "urn:li:person:" + cred.AccountID

	assetURNs := make([]string, 0, count)
	for _, mediaURL := range content.MediaURLs {
		assetURN, err := li.uploadAsset(ctx, cred, personURN, mediaURL)
		if err != nil {
			return nil, err
		}
		assetURNs = append(assetURNs, assetURN)
	}

	media := make([]map[string]interface{}, 0, len(assetURNs))
	for _, urn := range assetURNs {
		media = append(media, map[string]interface{}{
			"status": "READY",
			"media":  urn,
		})
	}

	payload := map[string]interface{}{
		"author":         personURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary": map[string]interface{}{
					"text": content.Text,
				},
				"shareMediaCategory": "IMAGE",
				"media":              media,
			},
		},
		"visibility": map[string]interface{}{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", li.baseURL+"/v2/ugcPosts", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := li.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("linkedin request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var envelope struct {
			Message string `json:"message"`
			Status  int    `json:"status"`
		}
		if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Message != "" {
			return nil, fmt.Errorf("linkedin: %s (status %d)", envelope.Message, envelope.Status)
		}
		return nil, fmt.Errorf("linkedin: unexpected status code %d", resp.StatusCode)
	}

	postID := resp.Header.Get("X-Restli-Id")
	if postID == "" {
		var result struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("error parsing response: %w", err)
		}
		postID = result.ID
	}
	if postID == "" {
		return nil, fmt.Errorf("linkedin: no post ID returned")
	}

	return &PublishResult{PlatformPostID: postID, PublishedAt: time.Now()}, nil
}

// uploadAsset runs the registerUpload handshake and pushes the media
// bytes to the returned upload URL.
func (li *LinkedinAdapter) uploadAsset(ctx context.Context, cred Credential, personURN, mediaURL string) (string, error) {
	registerPayload := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   personURN,
			"serviceRelationships": []map[string]interface{}{
				{
					"relationshipType": "OWNER",
					"identifier":       "urn:li:userGeneratedContent",
				},
			},
		},
	}

	body, err := json.Marshal(registerPayload)
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", li.baseURL+"/v2/assets?action=registerUpload", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := li.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("linkedin request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("linkedin: register upload failed (status %d)", resp.StatusCode)
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism struct {
				Request struct {
					UploadURL string `json:"uploadUrl"`
				} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}

	uploadURL := registered.Value.UploadMechanism.Request.UploadURL
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", fmt.Errorf("linkedin: register upload returned no upload target")
	}

	fetchReq, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	fetchResp, err := li.client.Do(fetchReq)
	if err != nil {
		return "", fmt.Errorf("linkedin: failed to fetch media %s: %w", mediaURL, err)
	}
	defer fetchResp.Body.Close()

	if fetchResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("linkedin: failed to fetch media %s (status %d)", mediaURL, fetchResp.StatusCode)
	}

	mediaBytes, err := io.ReadAll(fetchResp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading media body: %w", err)
	}

	uploadReq, err := http.NewRequestWithContext(ctx, "PUT", uploadURL, bytes.NewReader(mediaBytes))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	uploadReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	uploadResp, err := li.client.Do(uploadReq)
	if err != nil {
		return "", fmt.Errorf("linkedin request error: %w", err)
	}
	defer uploadResp.Body.Close()

	if uploadResp.StatusCode != http.StatusCreated && uploadResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("linkedin: asset upload failed (status %d)", uploadResp.StatusCode)
	}

	return registered.Value.Asset, nil
}

func (li *LinkedinAdapter) ValidateCredential(ctx context.Context, cred Credential) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", li.baseURL+"/v2/userinfo", nil)
	if err != nil {
		slog.Info(err.Error())
		return false
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := li.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (li *LinkedinAdapter) FetchEngagement(ctx context.Context, cred Credential, platformPostID string) (*models.EngagementSnapshot, error) {
	endpoint := fmt.Sprintf("%s/v2/socialActions/%s", li.baseURL, platformPostID)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := li.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("linkedin request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("linkedin: unexpected status code %d", resp.StatusCode)
	}

	var result struct {
		LikesSummary struct {
			TotalLikes int64 `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			TotalComments int64 `json:"aggregatedTotalComments"`
		} `json:"commentsSummary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	return &models.EngagementSnapshot{
		Likes:     result.LikesSummary.TotalLikes,
		Comments:  result.CommentsSummary.TotalComments,
		FetchedAt: time.Now(),
	}, nil
}
