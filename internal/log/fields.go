package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldReferer    = "referer"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"
	FieldRPC        = "rpc"
	FieldStudentID  = "student_id"
	FieldClassID    = "class_id"
	FieldAcademyID  = "academy_id"
	FieldRecordDate = "record_date"
	FieldStatus     = "attendance_status"
	FieldOutboxID   = "outbox_id"
	FieldVersion    = "version"
	FieldRetries    = "retries"
	FieldSheetsRef  = "sheets_ref"
	FieldTokenHint  = "token_hint"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentOverview   = "overview"
	ComponentAttendance = "attendance"
	ComponentSupabase   = "supabase"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentInflight   = "inflight"
	ComponentAuth       = "auth"
	ComponentRateLimit  = "rate_limit"
	ComponentBackend    = "backend"
	ComponentTemplate   = "template"
	ComponentNotify     = "notify"
)

// Operations defines standard operation names
const (
	OpLoadOverview = "load_overview"
	OpRecord       = "record_attendance"
	OpParentLink   = "parent_link"
	OpClassRoll    = "class_roll"
	OpTodayClasses = "today_classes"
	OpSync         = "sync"
	OpSweep        = "sweep"
	OpCleanup      = "cleanup"
	OpAppend       = "append"
	OpRender       = "render"
	OpShutdown     = "shutdown"
	OpStartup      = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeRemote        = "remote_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message; nil errors are ignored.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithAttendance adds the identifying fields of an attendance write.
func (f LogFields) WithAttendance(classID, studentID, date, status string) LogFields {
	f[FieldClassID] = classID
	f[FieldStudentID] = studentID
	f[FieldRecordDate] = date
	f[FieldStatus] = status
	return f
}

// WithToken adds a redacted hint of a parent token. The full token is never logged.
func (f LogFields) WithToken(token string) LogFields {
	f[FieldTokenHint] = TokenHint(token)
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}

// TokenHint keeps the first four characters of a token.
func TokenHint(token string) string {
	r := []rune(token)
	if len(r) <= 4 {
		return "****"
	}
	return string(r[:4]) + "…"
}
