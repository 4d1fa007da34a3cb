package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Setup & Launch errors (harness could not run the subject)
// 12000-12999: Observation errors (post-run inspection)
// 13000-13999: Reporting errors (result emission)

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalError ErrorCode = 10001
	InvalidParams ErrorCode = 10002
	Timeout       ErrorCode = 10003

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10301

	// ========== Setup & Launch Errors (11000-11999) ==========

	// Invocation setup (11000-11099)
	SetupError         ErrorCode = 11000
	RootNotPrepared    ErrorCode = 11001
	SubjectNotFound    ErrorCode = 11002
	SubjectNotRunnable ErrorCode = 11003
	WorkDirInvalid     ErrorCode = 11004

	// Resource limits (11100-11199)
	LimitError            ErrorCode = 11100
	LimitNotApplied       ErrorCode = 11101
	InsufficientPrivilege ErrorCode = 11102

	// Launch (11200-11299)
	LaunchError     ErrorCode = 11200
	HelperNotFound  ErrorCode = 11201
	PipeSetupFailed ErrorCode = 11202

	// ========== Observation Errors (12000-12999) ==========

	ObserveError   ErrorCode = 12000
	SnapshotFailed ErrorCode = 12001
	DiffAnomaly    ErrorCode = 12002

	// ========== Reporting Errors (13000-13999) ==========

	ReportError    ErrorCode = 13000
	ReportRejected ErrorCode = 13001
	SpoolFailed    ErrorCode = 13002
)

// errorMessages maps error codes to their default messages
var errorMessages = map[ErrorCode]string{
	Success: "Success",

	// Generic
	InternalError: "Internal harness error",
	InvalidParams: "Invalid parameters",
	Timeout:       "Operation timed out",

	// Validation
	ValidationFailed:   "Validation failed",
	RequiredFieldEmpty: "Required field is empty",

	// Setup
	SetupError:         "Invocation setup failed",
	RootNotPrepared:    "Isolated root is missing or malformed",
	SubjectNotFound:    "Subject program not found",
	SubjectNotRunnable: "Subject program is not executable",
	WorkDirInvalid:     "Working directory is invalid",

	// Limits
	LimitError:            "Resource limit configuration failed",
	LimitNotApplied:       "Resource limit could not be applied",
	InsufficientPrivilege: "Insufficient privilege to apply limits",

	// Launch
	LaunchError:     "Subject launch failed",
	HelperNotFound:  "Launch helper binary not found",
	PipeSetupFailed: "Stream pipe setup failed",

	// Observation
	ObserveError:   "Filesystem observation failed",
	SnapshotFailed: "Filesystem snapshot failed",
	DiffAnomaly:    "Filesystem diff encountered an anomalous entry",

	// Reporting
	ReportError:    "Result report failed",
	ReportRejected: "Result report rejected by collaborator",
	SpoolFailed:    "Result spool write failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// IsSetup reports whether the code describes a harness setup failure,
// as opposed to a subject-caused outcome or an observation anomaly.
func (c ErrorCode) IsSetup() bool {
	return c >= 11000 && c < 12000
}
