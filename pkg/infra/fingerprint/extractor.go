package fingerprint

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ipHeaders in resolution order. X-Forwarded-For wins because it is
// what the edge proxy sets; only its first entry is the client.
var ipHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"True-Client-IP",
	"CF-Connecting-IP",
}

// FromRequest derives the client identity for an inbound request,
// falling back to the peer address when no forwarding header carries a
// parseable IP.
func FromRequest(ctx *fiber.Ctx) Identity {
	return Identity{
		IP:        clientIP(ctx),
		UserAgent: ctx.Get("User-Agent"),
	}
}

func clientIP(ctx *fiber.Ctx) string {
	for _, header := range ipHeaders {
		value := ctx.Get(header)
		if value == "" {
			continue
		}
		ip := strings.TrimSpace(strings.Split(value, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	return strings.TrimSpace(ctx.IP())
}
