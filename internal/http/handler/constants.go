package handler

const (
	paramID        = "id"
	paramOperation = "operation"

	queryLimit        = "limit"
	queryOffset       = "offset"
	queryKeyID        = "keyId"
	queryHolderID     = "holderId"
	queryAssignmentID = "assignmentId"
	queryDelegationID = "delegationId"
	queryActorID      = "actorId"
	queryStatus       = "status"
	queryType         = "type"
	queryDepartment   = "department"
	querySince        = "since"
	queryUntil        = "until"
	queryRetired      = "includeRetired"

	listSeparator = ","
)

const (
	msgContentTypeJSONRequired = "content type must be application/json"
	msgInvalidRequestBody      = "invalid request body"
	msgInvalidIDFmt            = "invalid %s: must be a UUID"
	msgInvalidIntFmt           = "invalid %s: must be a non-negative integer"
	msgInvalidBoolFmt          = "invalid %s: must be true or false"
	msgInvalidTimeFmt          = "invalid %s: must be RFC 3339"
	msgArchiveDisabled         = "transaction archive is not configured"
	msgStreamUnavailable       = "transaction stream is not available"
)
