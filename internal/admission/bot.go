package admission

import (
	"context"
	"strings"
)

// BotCategory groups user agents that may be let through.
type BotCategory string

const (
	CategorySearchEngine BotCategory = "search_engine"
	CategoryPreview      BotCategory = "preview"
)

var knownBots = map[BotCategory][]string{
	CategorySearchEngine: {"googlebot", "bingbot", "duckduckbot", "yandexbot", "baiduspider", "applebot"},
	CategoryPreview:      {"slackbot", "twitterbot", "facebookexternalhit", "discordbot", "linkedinbot", "whatsapp", "telegrambot"},
}

var automatedMarkers = []string{
	"bot", "crawler", "spider", "scraper", "headless",
	"curl/", "wget/", "python-requests", "python-urllib", "aiohttp",
	"go-http-client", "java/", "okhttp", "libwww-perl", "httpclient", "node-fetch", "axios/",
	"phantomjs", "selenium", "puppeteer", "playwright",
}

// BotPolicy rejects empty and automated user agents unless they belong to
// an allowed category.
type BotPolicy struct {
	allowed []BotCategory
}

func NewBotPolicy(allowed ...BotCategory) BotPolicy {
	return BotPolicy{allowed: allowed}
}

func (p BotPolicy) Evaluate(_ context.Context, req Request) (Decision, error) {
	ua := strings.ToLower(strings.TrimSpace(req.Header.Get("User-Agent")))
	if ua == "" {
		return Deny(ReasonForbidden), nil
	}

	for _, category := range p.allowed {
		for _, name := range knownBots[category] {
			if strings.Contains(ua, name) {
				return Allow(), nil
			}
		}
	}

	for _, marker := range automatedMarkers {
		if strings.Contains(ua, marker) {
			return Deny(ReasonForbidden), nil
		}
	}
	return Allow(), nil
}
