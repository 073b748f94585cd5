package httpx

import (
	"net/http"
	"strconv"
	"time"
)

// ParseAnthropicRateLimitHeaders reads Anthropic's retry-after and
// anthropic-ratelimit-* headers.
func ParseAnthropicRateLimitHeaders(h http.Header) RateLimitInfo {
	var info RateLimitInfo
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("anthropic-ratelimit-requests-remaining"); v != "" {
		info.RequestsRemaining, _ = strconv.Atoi(v)
	}
	if v := h.Get("anthropic-ratelimit-tokens-remaining"); v != "" {
		info.TokensRemaining, _ = strconv.Atoi(v)
	}
	return info
}

// ParseOpenAIRateLimitHeaders reads OpenAI's x-ratelimit-* headers.
func ParseOpenAIRateLimitHeaders(h http.Header) RateLimitInfo {
	var info RateLimitInfo
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("x-ratelimit-remaining-requests"); v != "" {
		info.RequestsRemaining, _ = strconv.Atoi(v)
	}
	if v := h.Get("x-ratelimit-remaining-tokens"); v != "" {
		info.TokensRemaining, _ = strconv.Atoi(v)
	}
	return info
}

// ParseGenericRetryAfter is used for providers (Gemini) that only ever send
// a bare Retry-After.
func ParseGenericRetryAfter(h http.Header) RateLimitInfo {
	var info RateLimitInfo
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return info
}
