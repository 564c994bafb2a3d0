package adapter

import "strings"

var videoExtensions = []string{".mp4", ".mov", ".avi", ".mkv"}

// isVideoURL classifies a media reference by extension. The platforms all
// accept the same split, so the heuristic lives here rather than per
// adapter.
func isVideoURL(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
