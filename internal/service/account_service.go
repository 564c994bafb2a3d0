package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	config "github.com/conscious-collective/relay-social/configs"
	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/repository"
	"github.com/conscious-collective/relay-social/internal/transfer"
	"github.com/conscious-collective/relay-social/pkg/utils"
)

type AccountService interface {
	AuthURL(platform, state string) (authURL, verifier string, err error)
	InstagramCallback(ctx context.Context, code string, userID int64) error
	TwitterCallback(ctx context.Context, code, verifier string, userID int64) error
	LinkedinCallback(ctx context.Context, code string, userID int64) error
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Remove(ctx context.Context, userID, accountID int64) error
	RefreshInstagramToken(ctx context.Context, account *models.SocialAccount) error
}

type accountService struct {
	cfg      *config.Config
	sa       repository.SocialAccountRepository
	notifier Notifier

	twitterOAuth  *oauth2.Config
	linkedinOAuth *oauth2.Config
}

func NewAccountService(cfg *config.Config, sa repository.SocialAccountRepository, notifier Notifier) AccountService {
	return &accountService{
		cfg:      cfg,
		sa:       sa,
		notifier: notifier,
		twitterOAuth: &oauth2.Config{
			ClientID:     cfg.TwitterClientID,
			ClientSecret: cfg.TwitterClientSecret,
			RedirectURL:  cfg.TwitterRedirectURI,
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://twitter.com/i/oauth2/authorize",
				TokenURL: "https://api.twitter.com/2/oauth2/token",
			},
		},
		linkedinOAuth: &oauth2.Config{
			ClientID:     cfg.LinkedinClientID,
			ClientSecret: cfg.LinkedinClientSecret,
			RedirectURL:  cfg.LinkedinRedirectURI,
			Scopes:       []string{"openid", "profile", "w_member_social"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.linkedin.com/oauth/v2/authorization",
				TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
			},
		},
	}
}

// AuthURL builds the consent-screen URL for a platform. Twitter uses
// PKCE, so its verifier is returned for the caller to hold onto until
// the callback.
func (s *accountService) AuthURL(platform, state string) (string, string, error) {
	switch platform {
	case "instagram":
		q := url.Values{}
		q.Set("client_id", s.cfg.InstagramClientID)
		q.Set("redirect_uri", s.cfg.InstagramRedirectURI)
		q.Set("scope", "instagram_business_basic,instagram_business_content_publish")
		q.Set("response_type", "code")
		q.Set("state", state)
		return "https://www.instagram.com/oauth/authorize?" + q.Encode(), "", nil
	case "twitter":
		verifier := oauth2.GenerateVerifier()
		return s.twitterOAuth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), verifier, nil
	case "linkedin":
		return s.linkedinOAuth.AuthCodeURL(state), "", nil
	default:
		return "", "", fmt.Errorf("%w: %s", models.ErrUnsupportedPlatform, platform)
	}
}

func (s *accountService) InstagramCallback(ctx context.Context, code string, userID int64) error {
	if code == "" {
		err := errors.New("code is empty")
		slog.Info(err.Error())
		return fmt.Errorf("%w: authorization code is missing", models.ErrValidation)
	}

	if userID == 0 {
		return fmt.Errorf("%w: user not found", models.ErrValidation)
	}

	token, err := s.exchangeInstagramCode(ctx, code)
	if err != nil {
		return err
	}

	userInfo, err := s.instagramUserInfo(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	return s.storeAccount(ctx, userID, &models.SocialAccount{
		UserID:          userID,
		Platform:        "instagram",
		AccountID:       userInfo.UserID,
		AccountName:     userInfo.Name,
		AccountUsername: userInfo.Username,
		ProfilePicture:  userInfo.ProfilePicture,
		TokenExpiresAt:  token.ExpiresAt,
	}, token.AccessToken, token.AccessToken)
}

func (s *accountService) TwitterCallback(ctx context.Context, code, verifier string, userID int64) error {
	if code == "" {
		return fmt.Errorf("%w: authorization code is missing", models.ErrValidation)
	}
	if userID == 0 {
		return fmt.Errorf("%w: user not found", models.ErrValidation)
	}

	token, err := s.twitterOAuth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to exchange twitter code: %w", err)
	}

	var userResp struct {
		Data struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"data"`
	}
	client := s.twitterOAuth.Client(ctx, token)
	if err := fetchJSON(ctx, client, "https://api.twitter.com/2/users/me", &userResp); err != nil {
		return fmt.Errorf("failed to fetch twitter profile: %w", err)
	}

	return s.storeAccount(ctx, userID, &models.SocialAccount{
		UserID:          userID,
		Platform:        "twitter",
		AccountID:       userResp.Data.ID,
		AccountName:     userResp.Data.Name,
		AccountUsername: userResp.Data.Username,
		TokenExpiresAt:  token.Expiry,
	}, token.AccessToken, token.RefreshToken)
}

func (s *accountService) LinkedinCallback(ctx context.Context, code string, userID int64) error {
	if code == "" {
		return fmt.Errorf("%w: authorization code is missing", models.ErrValidation)
	}
	if userID == 0 {
		return fmt.Errorf("%w: user not found", models.ErrValidation)
	}

	token, err := s.linkedinOAuth.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to exchange linkedin code: %w", err)
	}

	var userResp struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	client := s.linkedinOAuth.Client(ctx, token)
	if err := fetchJSON(ctx, client, "https://api.linkedin.com/v2/userinfo", &userResp); err != nil {
		return fmt.Errorf("failed to fetch linkedin profile: %w", err)
	}

	return s.storeAccount(ctx, userID, &models.SocialAccount{
		UserID:          userID,
		Platform:        "linkedin",
		AccountID:       userResp.Sub,
		AccountName:     userResp.Name,
		AccountUsername: userResp.Email,
		ProfilePicture:  userResp.Picture,
		TokenExpiresAt:  token.Expiry,
	}, token.AccessToken, token.RefreshToken)
}

// storeAccount encrypts tokens, persists the account and emits the
// connected event. Tokens never leave storage unencrypted.
func (s *accountService) storeAccount(ctx context.Context, userID int64, account *models.SocialAccount, accessToken, refreshToken string) error {
	encryptedAccess, err := utils.Encrypt([]byte(accessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}
	if refreshToken == "" {
		refreshToken = accessToken
	}
	encryptedRefresh, err := utils.Encrypt([]byte(refreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	account.AccessToken = encryptedAccess
	account.RefreshToken = encryptedRefresh

	id, err := s.sa.Create(ctx, nil, account)
	if err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, models.EventAccountConnected, transfer.AccountEvent{
			AccountID: id,
			Platform:  account.Platform,
			Username:  account.AccountUsername,
			Status:    models.AccountStatusActive,
		})
	}

	return nil
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	accounts, err := s.sa.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing accounts: %w", err)
	}
	return accounts, nil
}

func (s *accountService) Remove(ctx context.Context, userID, accountID int64) error {
	isOwner, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if !isOwner {
		return fmt.Errorf("%w: social account %d", models.ErrNotFound, accountID)
	}

	return s.sa.Remove(ctx, accountID)
}

func (s *accountService) exchangeInstagramCode(ctx context.Context, code string) (*transfer.InstagramToken, error) {
	shortLived, err := s.instagramShortLivedToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get short-lived token: %v", err)
	}

	longLived, expiresAt, err := s.instagramLongLivedToken(ctx, shortLived)
	if err != nil {
		return nil, fmt.Errorf("failed to get long-lived token: %v", err)
	}

	return &transfer.InstagramToken{
		AccessToken: longLived,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *accountService) instagramShortLivedToken(ctx context.Context, code string) (string, error) {
	data := url.Values{}
	data.Set("client_id", s.cfg.InstagramClientID)
	data.Set("client_secret", s.cfg.InstagramClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", s.cfg.InstagramRedirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.instagram.com/oauth/access_token",
		strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("failed to get short-lived token: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		UserID      int    `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("failed to decode token response: %v", err)
	}

	return result.AccessToken, nil
}

func (s *accountService) instagramLongLivedToken(ctx context.Context, shortLivedToken string) (string, time.Time, error) {
	reqURL := fmt.Sprintf(
		"https://graph.instagram.com/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		s.cfg.InstagramClientSecret,
		shortLivedToken,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", time.Time{}, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", time.Time{}, fmt.Errorf("failed to get long-lived token: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, fmt.Errorf("error response from Instagram: %s (status code: %d)", body, resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", time.Time{}, fmt.Errorf("failed to decode long-lived token response: %v", err)
	}

	return result.AccessToken, time.Now().Add(time.Second * time.Duration(result.ExpiresIn)), nil
}

func (s *accountService) instagramUserInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	var userInfo transfer.InstagramUserInfo

	reqURL := fmt.Sprintf(
		"https://graph.instagram.com/me?fields=id,username,name,account_type,profile_picture_url&access_token=%s",
		accessToken,
	)

	if err := fetchJSON(ctx, http.DefaultClient, reqURL, &userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &userInfo, nil
}

func (s *accountService) RefreshInstagramToken(ctx context.Context, account *models.SocialAccount) error {
	decryptedRefreshToken, err := utils.Decrypt(account.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf(
		"https://graph.instagram.com/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		decryptedRefreshToken,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if result.AccessToken == "" {
		return fmt.Errorf("%w: instagram refresh returned no token", models.ErrInvalidCredential)
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(result.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	return s.sa.SetToken(ctx, account.ID, &models.SocialAccount{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedAccessToken,
		TokenExpiresAt: time.Now().Add(time.Second * time.Duration(result.ExpiresIn)),
	})
}

func fetchJSON(ctx context.Context, client *http.Client, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
