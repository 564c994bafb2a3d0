package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkedinPublish(t *testing.T) {
	mediaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image bytes"))
	}))
	defer mediaSrv.Close()

	var registered, uploaded, posted int

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/assets":
			registered++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": map[string]interface{}{
					"asset": fmt.Sprintf("urn:li:digitalmediaAsset:%d", registered),
					"uploadMechanism": map[string]interface{}{
						"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": map[string]string{
							"uploadUrl": srv.URL + "/upload",
						},
					},
				},
			})
		case r.URL.Path == "/upload":
			uploaded++
			assert.Equal(t, http.MethodPut, r.Method)
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/v2/ugcPosts":
			posted++
			var payload struct {
				Author          string `json:"author"`
				SpecificContent struct {
					Share struct {
						Media []struct {
							Media string `json:"media"`
						} `json:"media"`
					} `json:"com.linkedin.ugc.ShareContent"`
				} `json:"specificContent"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "urn:li:person:person-1", payload.Author)
			assert.Len(t, payload.SpecificContent.Share.Media, 2)
			w.Header().Set("X-Restli-Id", "urn:li:share:99")
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	li := &LinkedinAdapter{baseURL: srv.URL, client: srv.Client()}

	result, err := li.Publish(context.Background(), Credential{AccountID: "person-1", AccessToken: "tok"}, PostContent{
		Text:      "a share",
		MediaURLs: []string{mediaSrv.URL + "/a.jpg", mediaSrv.URL + "/b.jpg"},
	})

	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:99", result.PlatformPostID)
	assert.Equal(t, 2, registered)
	assert.Equal(t, 2, uploaded)
	assert.Equal(t, 1, posted)
}

func TestLinkedinPublishTooManyItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no platform call expected over the media limit")
	}))
	defer srv.Close()

	li := &LinkedinAdapter{baseURL: srv.URL, client: srv.Client()}

	urls := make([]string, 10)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://cdn.example.com/%d.jpg", i)
	}

	_, err := li.Publish(context.Background(), Credential{AccountID: "person-1"}, PostContent{MediaURLs: urls})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 9 media items")
}

func TestLinkedinPublishErrorMessage(t *testing.T) {
	mediaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image bytes"))
	}))
	defer mediaSrv.Close()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/assets":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": map[string]interface{}{
					"asset": "urn:li:digitalmediaAsset:1",
					"uploadMechanism": map[string]interface{}{
						"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": map[string]string{
							"uploadUrl": srv.URL + "/upload",
						},
					},
				},
			})
		case "/upload":
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": "urn does not exist",
				"status":  422,
			})
		}
	}))
	defer srv.Close()

	li := &LinkedinAdapter{baseURL: srv.URL, client: srv.Client()}

	_, err := li.Publish(context.Background(), Credential{AccountID: "person-1", AccessToken: "tok"}, PostContent{
		MediaURLs: []string{mediaSrv.URL + "/a.jpg"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "urn does not exist")
}

func TestIsVideoURL(t *testing.T) {
	assert.True(t, isVideoURL("https://cdn.example.com/clip.mp4"))
	assert.True(t, isVideoURL("https://cdn.example.com/CLIP.MOV"))
	assert.False(t, isVideoURL("https://cdn.example.com/pic.jpg"))
	assert.False(t, isVideoURL("https://cdn.example.com/pic.png"))
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(NewInstagramAdapter(), NewTwitterAdapter(), NewLinkedinAdapter())

	for _, platform := range []string{"instagram", "twitter", "linkedin"} {
		a, ok := registry.Lookup(platform)
		require.True(t, ok, platform)
		assert.Equal(t, platform, a.Platform())
	}

	_, ok := registry.Lookup("tiktok")
	assert.False(t, ok)
	assert.Len(t, registry.Platforms(), 3)
}
