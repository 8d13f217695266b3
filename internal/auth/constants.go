package auth

const (
	ContextKeyActorID  = "actor_id"
	ContextKeySubject  = "auth_subject"
	ContextKeyAuthType = "auth_type"

	jsonKeyError = "error"

	headerAuthorization = "Authorization"
	headerStationKey    = "X-Station-Key"

	bearerScheme     = "bearer"
	authHeaderParts  = 2
	websocketUpgrade = "websocket"
	queryAccessToken = "access_token"

	stationEntrySeparator = ","
	stationPairSeparator  = "="
)

const (
	msgMissingAuthorization    = "missing authorization token"
	msgInvalidOrExpiredToken   = "invalid or expired token"
	msgMissingStationKey       = "missing station key"
	msgInvalidStationKey       = "invalid station key"
	msgActorNotAuthenticated   = "actor not authenticated"
	msgInvalidActorIDCtx       = "invalid actor ID in context"
	msgUnexpectedSigningMethod = "unexpected signing method: %v"
	msgTokenParseFailed        = "failed to parse token: %w"
	msgInvalidTokenClaims      = "invalid token claims"
	msgInvalidRoleFmt          = "invalid role: %w"
	msgStationEntryFmt         = "invalid station entry %q: expected <station-uuid>=<hash>"
	msgStationIDFmt            = "invalid station id %q: %w"
	msgStationHashFmt          = "invalid station hash for %s"
	msgStationSaltRequired     = "station key salt is required"
)

type AuthType string

const (
	AuthTypeJWT     AuthType = "jwt"
	AuthTypeStation AuthType = "station"
)
