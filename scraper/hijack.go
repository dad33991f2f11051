package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to rod resource types. Scripts and
// stylesheets are deliberately absent: storefronts build their product
// markup with them.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image": proto.NetworkResourceTypeImage,
	"Font":  proto.NetworkResourceTypeFont,
	"Media": proto.NetworkResourceTypeMedia,
	"Ping":  proto.NetworkResourceTypePing,
}

// adHosts are ad, analytics and chat-widget hosts that only slow a render.
var adHosts = []string{
	"doubleclick.net", "googlesyndication.com", "googleadservices.com",
	"google-analytics.com", "googletagmanager.com", "connect.facebook.net",
	"hotjar.com", "clarity.ms", "criteo.com", "taboola.com", "outbrain.com",
	"adnxs.com", "amazon-adsystem.com", "klaviyo.com", "intercom.io",
	"tiktok.com", "bat.bing.com", "snapchat.com", "pinimg.com",
	"zendesk.com", "tawk.to", "trustpilot.com", "yotpo.com",
}

// isAdHost reports whether host is, or is a subdomain of, an ad host.
func isAdHost(host string) bool {
	host = strings.ToLower(host)
	for _, ad := range adHosts {
		if host == ad || strings.HasSuffix(host, "."+ad) {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor that fails blocked resource
// types and, optionally, requests to ad hosts. It returns nil when there
// is nothing to block; otherwise the caller must Stop the router.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if _, ok := blocked[h.Request.Type()]; ok {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		if blockAds {
			if u, err := url.Parse(h.Request.URL().String()); err == nil && isAdHost(u.Hostname()) {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()
	return router
}
