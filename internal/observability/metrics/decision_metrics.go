package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zarver/zarver/internal/authorization"
	"gorm.io/gorm"
)

const (
	decisionErrorTypeDeadlineExceeded = "deadline_exceeded"
	decisionErrorTypeAuthorization    = "authorization"
	decisionErrorTypeBusinessRule     = "business_rule"
	decisionErrorTypeDB               = "db"
)

const (
	ErrorTypeDeadlineExceeded = decisionErrorTypeDeadlineExceeded
	ErrorTypeAuthorization    = decisionErrorTypeAuthorization
	ErrorTypeBusinessRule     = decisionErrorTypeBusinessRule
	ErrorTypeDB               = decisionErrorTypeDB
	ErrorTypeUnknown          = "unknown"
)

const (
	StorageReasonDeadlineExceeded     = "deadline_exceeded"
	StorageReasonDBLockTimeout        = "db_lock_timeout"
	StorageReasonSerializationFailure = "serialization_failure"
	StorageReasonUniqueViolation      = "unique_violation"
	StorageReasonForbidden            = "forbidden"
	StorageReasonUnknown              = "unknown"
)

const (
	StageGenerate       = "generate"
	StageQuota          = "quota"
	StagePersist        = "persist"
	StageResolve        = "resolve"
	StageAnnotate       = "annotate"
	StageVote           = "vote"
	StageStatsRecompute = "stats_recompute"
)

const (
	GeneratorOutcomeOK       = "ok"
	GeneratorOutcomeFallback = "fallback"
)

const (
	ResolutionResultResolved = "resolved"
	ResolutionResultConflict = "already_resolved"
	ResolutionResultError    = "error"
)

const (
	LockResourceQuotaState   = "quota_state_by_user"
	LockResourceDecisionByID = "decision_by_id"
)

// DecisionMetrics captures decision pipeline health signals for SLOs.
type DecisionMetrics struct {
	generatorRequests  *prometheus.CounterVec
	generatorDuration  *prometheus.HistogramVec
	resolutionAttempts *prometheus.CounterVec
	pipelineErrors     *prometheus.CounterVec
	dbLockWait         *prometheus.HistogramVec
	statsRecompute     prometheus.Observer
	errorCounts        map[string]map[string]prometheus.Counter
	lockWaitObserver   map[string]prometheus.Observer
}

var (
	decisionMetricsOnce sync.Once
	decisionMetrics     *DecisionMetrics
)

// Decision returns the singleton decision metrics registry.
func Decision() *DecisionMetrics {
	return DecisionWithConfig(Config{})
}

// DecisionWithConfig returns the singleton decision metrics registry using config labels.
func DecisionWithConfig(cfg Config) *DecisionMetrics {
	decisionMetricsOnce.Do(func() {
		decisionMetrics = newDecisionMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return decisionMetrics
}

// ResetDecisionMetricsForTest resets the decision metrics singleton for tests.
func ResetDecisionMetricsForTest() {
	decisionMetricsOnce = sync.Once{}
	decisionMetrics = nil
}

func newDecisionMetrics(registerer prometheus.Registerer, cfg Config) *DecisionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "zarver"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	generatorRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "zarver_generator_requests_total",
		Help:        "Alternative generator calls by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	generatorDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "zarver_generator_request_duration_seconds",
		Help:        "Alternative generator latency to protect decision create SLOs.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		ConstLabels: constLabels,
	}, []string{"outcome"})
	resolutionAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "zarver_resolution_attempts_total",
		Help:        "Dice roll resolution attempts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	pipelineErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "zarver_decision_errors_total",
		Help:        "Decision pipeline errors by stage and low-cardinality type.",
		ConstLabels: constLabels,
	}, []string{"stage", "error_type"})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "zarver_db_lock_wait_seconds",
		Help:        "DB lock wait time for SELECT FOR UPDATE contention.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})
	statsRecompute := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "zarver_stats_recompute_duration_seconds",
		Help:        "User decision stats recompute latency.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		generatorRequests,
		generatorDuration,
		resolutionAttempts,
		pipelineErrors,
		dbLockWait,
		statsRecompute,
	)

	lockWaitObserver := map[string]prometheus.Observer{
		LockResourceQuotaState:   dbLockWait.WithLabelValues(LockResourceQuotaState),
		LockResourceDecisionByID: dbLockWait.WithLabelValues(LockResourceDecisionByID),
	}

	errorCounts := map[string]map[string]prometheus.Counter{}
	errorTypes := []string{
		decisionErrorTypeDeadlineExceeded,
		decisionErrorTypeAuthorization,
		decisionErrorTypeBusinessRule,
		decisionErrorTypeDB,
	}
	for _, stage := range []string{
		StageGenerate,
		StageQuota,
		StagePersist,
		StageResolve,
		StageAnnotate,
		StageVote,
		StageStatsRecompute,
	} {
		stageCounters := map[string]prometheus.Counter{}
		for _, errType := range errorTypes {
			stageCounters[errType] = pipelineErrors.WithLabelValues(stage, errType)
		}
		errorCounts[stage] = stageCounters
	}

	return &DecisionMetrics{
		generatorRequests:  generatorRequests,
		generatorDuration:  generatorDuration,
		resolutionAttempts: resolutionAttempts,
		pipelineErrors:     pipelineErrors,
		dbLockWait:         dbLockWait,
		statsRecompute:     statsRecompute,
		errorCounts:        errorCounts,
		lockWaitObserver:   lockWaitObserver,
	}
}

// IncGeneratorRequest increments the generator call counter by outcome.
func (m *DecisionMetrics) IncGeneratorRequest(outcome string) {
	if m == nil || m.generatorRequests == nil {
		return
	}
	m.generatorRequests.WithLabelValues(outcome).Inc()
}

// ObserveGeneratorDuration records generator latency in seconds.
func (m *DecisionMetrics) ObserveGeneratorDuration(outcome string, duration time.Duration) {
	if m == nil || m.generatorDuration == nil {
		return
	}
	m.generatorDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncResolutionAttempt increments the resolution attempt counter by result.
func (m *DecisionMetrics) IncResolutionAttempt(result string) {
	if m == nil || m.resolutionAttempts == nil {
		return
	}
	m.resolutionAttempts.WithLabelValues(result).Inc()
}

// IncPipelineError increments decision pipeline errors by stage and type.
func (m *DecisionMetrics) IncPipelineError(stage string, err error) {
	if m == nil || err == nil {
		return
	}
	errorType := classifyDecisionError(err)
	if stageCounters, ok := m.errorCounts[stage]; ok {
		if counter, ok := stageCounters[errorType]; ok {
			counter.Inc()
			return
		}
	}
	m.pipelineErrors.WithLabelValues(stage, errorType).Inc()
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *DecisionMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ObserveStatsRecompute records stats recompute latency in seconds.
func (m *DecisionMetrics) ObserveStatsRecompute(duration time.Duration) {
	if m == nil || m.statsRecompute == nil {
		return
	}
	m.statsRecompute.Observe(duration.Seconds())
}

func classifyDecisionError(err error) string {
	if err == nil {
		return decisionErrorTypeBusinessRule
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return decisionErrorTypeDeadlineExceeded
	}
	if isAuthorizationError(err) {
		return decisionErrorTypeAuthorization
	}
	if isDBError(err) {
		return decisionErrorTypeDB
	}
	return decisionErrorTypeBusinessRule
}

// ClassifyErrorType returns a low-cardinality error type for logging.
func ClassifyErrorType(err error) string {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorTypeDeadlineExceeded
	}
	if isAuthorizationError(err) {
		return ErrorTypeAuthorization
	}
	if isDBError(err) {
		return ErrorTypeDB
	}
	return ErrorTypeBusinessRule
}

// IsStorageErrorRetryable reports whether the storage error should be retried.
func IsStorageErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

// ClassifyStorageReason maps storage errors to low-cardinality reasons.
func ClassifyStorageReason(err error) string {
	if err == nil {
		return StorageReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StorageReasonDeadlineExceeded
	}
	if isAuthorizationError(err) {
		return StorageReasonForbidden
	}
	if isDBLockTimeout(err) {
		return StorageReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return StorageReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return StorageReasonUniqueViolation
	}
	return StorageReasonUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isAuthorizationError(err error) bool {
	return errors.Is(err, authorization.ErrForbidden) ||
		errors.Is(err, authorization.ErrInvalidActor) ||
		errors.Is(err, authorization.ErrInvalidObject) ||
		errors.Is(err, authorization.ErrInvalidAction)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrRegistered) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrNotImplemented) ||
		errors.Is(err, gorm.ErrDryRunModeUnsupported) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
