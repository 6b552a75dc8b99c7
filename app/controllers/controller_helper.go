package controllers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP determines the client address behind Cloudflare or a reverse proxy.
// Used as the rate limiter key.
func ClientIP(c *fiber.Ctx) string {
	// 1. Cloudflare provides the original client IP
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	// 2. X-Forwarded-For - the first entry is the original client
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}

	// 3. No proxy headers, use the connection address
	ipAddr := c.IP()
	// IPv4-mapped IPv6 (::ffff:192.168.1.1)
	if strings.HasPrefix(ipAddr, "::ffff:") && strings.Contains(ipAddr, ".") {
		return strings.TrimPrefix(ipAddr, "::ffff:")
	}
	return ipAddr
}

func requestHeaders(c *fiber.Ctx) http.Header {
	headers := make(http.Header)
	for key, values := range c.GetReqHeaders() {
		for _, v := range values {
			headers.Add(key, v)
		}
	}
	return headers
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
