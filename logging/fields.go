package logging

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldBytes      = "bytes"
	FieldRemoteAddr = "remote_addr"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldScopeID    = "scope_id"
	FieldTemplateID = "template_id"
	FieldDate       = "date"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentEngine  = "engine"
	ComponentStorage = "storage"
	ComponentConfig  = "config"
)

// Operations defines standard operation names
const (
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
	OpQuery     = "query"
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpExclude   = "exclude"
	OpException = "exception"
)
