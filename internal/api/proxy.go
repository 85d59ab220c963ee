// internal/api/proxy.go
package api

import (
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/roelvdh/marktwatch/internal/cache"
)

// maxProxyBody caps how much of an upstream image we will buffer and cache.
const maxProxyBody = 8 << 20 // 8 MiB

// handleProxyImage fetches a listing image on behalf of the browser so the
// dashboard avoids hotlink and referer blocks. Responses are cached in memory
// and upstream fetches are rate limited per host.
func (s *Server) handleProxyImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url parameter is required")
		return
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	if entry, ok := s.cache.Get(raw); ok {
		serveImage(w, entry)
		return
	}

	if err := s.limiter.Wait(r.Context(), raw); err != nil {
		writeError(w, http.StatusTooManyRequests, "upstream rate limit")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, raw, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", raw).Msg("Image proxy fetch failed")
		writeError(w, http.StatusBadGateway, "upstream fetch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusBadGateway, "upstream returned "+resp.Status)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBody+1))
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream read failed")
		return
	}
	if int64(len(body)) > maxProxyBody {
		writeError(w, http.StatusBadGateway, "upstream response too large")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	entry := &cache.Entry{ContentType: contentType, Body: body}
	if err := s.cache.Set(raw, entry, s.cfg.CacheTTL); err != nil {
		log.Debug().Err(err).Str("url", raw).Msg("Image cache store failed")
	}

	serveImage(w, entry)
}

func serveImage(w http.ResponseWriter, entry *cache.Entry) {
	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Body)
}
