// Package chatapi serves agent conversations over HTTP.
//
// Routes:
//
//	POST   /api/chat          {"message": "..."} -> {"message": reply, "success": true}
//	DELETE /api/chat/history  clears the caller's conversation
//	GET    /health
//	GET    /metrics           Prometheus exposition
//
// A conversation is selected by the X-Session-ID request header. When the
// header is absent a new ID is generated and returned in the same header.
// Conversations are created on first use through a SessionFactory and are
// dropped after an idle period.
//
// Chat routes are rate limited per client IP with a sliding window; callers
// over the limit receive 429 with a Retry-After header.
package chatapi
