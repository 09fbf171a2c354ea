package cnst

import "time"

const (
	// AppName is the application name used in logs and metrics
	AppName = "tabbridge"
)

const (
	// CacheKeyAccessToken is the cache slot holding the shared bearer token
	CacheKeyAccessToken = "accessToken"
	// CacheKeyConversationID is the cache slot holding the standing
	// conversation thread id; it shares the token slot's TTL
	CacheKeyConversationID = "conversationId"

	// DefaultCacheTTL bounds both the access token and conversation
	// continuity
	DefaultCacheTTL = 10 * time.Minute
)

// DoneSentinel is the literal payload the backend sends to close a stream
const DoneSentinel = "[DONE]"
