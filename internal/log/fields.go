package log

import "cashflow/internal/core"

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
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldDebtID     = "debt_id"
	FieldBillID     = "bill_id"
	FieldSnapshotID = "snapshot_id"
	FieldPeriod     = "period"
	FieldBalance    = "balance"
	FieldInterest   = "interest"
	FieldPayments   = "payments"
	FieldNewBalance = "new_balance"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAccrual   = "accrual"
	ComponentDebt      = "debt"
	ComponentBill      = "bill"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpAccrue   = "accrue"
	OpPay      = "pay"
	OpExport   = "export"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

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

func (f LogFields) WithDebt(debt core.Debt) LogFields {
	f[FieldDebtID] = debt.ID
	f[FieldUserID] = debt.UserID
	f[FieldBalance] = debt.Balance.String()
	return f
}

// WithSnapshot adds the accrual figures recorded in a monthly snapshot.
func (f LogFields) WithSnapshot(s core.DebtMonthlySnapshot) LogFields {
	f[FieldSnapshotID] = s.ID
	f[FieldDebtID] = s.DebtID
	f[FieldPeriod] = s.YearMonth.String()
	f[FieldBalance] = s.BalanceBefore.String()
	f[FieldInterest] = s.InterestApplied.String()
	f[FieldPayments] = s.PaymentsApplied.String()
	f[FieldNewBalance] = s.BalanceAfter.String()
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to key/value pairs for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
