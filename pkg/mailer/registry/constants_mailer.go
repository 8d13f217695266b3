package registry

const (
	ProviderResend   = "resend"
	ProviderSendGrid = "sendgrid"
)

const (
	StrategySingle     = "single"
	StrategyFailover   = "failover"
	StrategyRoundRobin = "roundrobin"
)

const (
	ProviderLabelNone       = "none"
	ProviderLabelFailover   = "failover"
	ProviderLabelValidation = "validation"
	ProviderLabelTemplate   = "template"
	UnknownProviderName     = "unknown"
)

const (
	ResendAPIURL   = "https://api.resend.com"
	SendGridAPIURL = "https://api.sendgrid.com"
)

const (
	PathResendEmails     = "/emails"
	PathResendAPIKeys    = "/api-keys"
	PathSendGridMailSend = "/v3/mail/send"
	PathSendGridScopes   = "/v3/scopes"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderMessageID     = "X-Message-Id"
)

const (
	AuthBearerPrefix    = "Bearer "
	MIMEApplicationJSON = "application/json"
)

const (
	JSONFrom             = "from"
	JSONTo               = "to"
	JSONSubject          = "subject"
	JSONHTML             = "html"
	JSONText             = "text"
	JSONReplyTo          = "reply_to"
	JSONCC               = "cc"
	JSONBCC              = "bcc"
	JSONEmail            = "email"
	JSONPersonalizations = "personalizations"
	JSONContent          = "content"
	JSONType             = "type"
	JSONValue            = "value"
)

const (
	MIMETextHTML  = "text/html"
	MIMETextPlain = "text/plain"
)

const (
	URLSchemeHTTP  = "http"
	URLSchemeHTTPS = "https"
)

const TemplateNameOverdueReminder = "overdue-reminder"

const (
	RecipientFieldTo  = "to"
	RecipientFieldCC  = "cc"
	RecipientFieldBCC = "bcc"
)

const (
	HTTPStatusSuccessMin = 200
	HTTPStatusSuccessMax = 300
)

const (
	MessageSeparator       = "; "
	StrategySendFailedText = "send failed"
)

const (
	MsgFailedMarshalPayloadFmt = "failed to marshal payload: %v"
	MsgFailedCreateRequestFmt  = "failed to create request: %v"
	MsgRequestFailedFmt        = "request failed: %v"
	MsgFailedParseResponseFmt  = "failed to parse response: %v"
	MsgResendAPIErrorFmt       = "Resend API error: %d - %s"
	MsgSendGridAPIErrorFmt     = "SendGrid API error: %d - %s"
	MsgProviderErrorFmt        = "%s: %s"
	MsgUnknownStrategyFmt      = "unknown mail strategy: %q"
	MsgRenderFailedFmt         = "render %s: %w"
)
