package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrUnauthenticated ErrCode = "UNAUTHENTICATED"
	ErrTokenRequired   ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid    ErrCode = "TOKEN_INVALID"
	ErrTokenExpired    ErrCode = "TOKEN_EXPIRED"
	ErrAccountInactive ErrCode = "ACCOUNT_INACTIVE"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"
	ErrCronSecretInvalid ErrCode = "CRON_SECRET_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Simulation-specific ───────────────────────────────────────────
	ErrSimulationNotPublished ErrCode = "SIMULATION_NOT_PUBLISHED"
	ErrSimulationNotDraft     ErrCode = "SIMULATION_NOT_DRAFT"
	ErrWindowNotOpen          ErrCode = "WINDOW_NOT_OPEN"
	ErrWindowClosed           ErrCode = "WINDOW_CLOSED"
	ErrNotScheduled           ErrCode = "NOT_SCHEDULED"
	ErrNoActiveSession        ErrCode = "NO_ACTIVE_SESSION"
	ErrActionRejected         ErrCode = "ACTION_REJECTED"
	ErrSweepRunning           ErrCode = "SWEEP_RUNNING"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrUnauthenticated:
		return "Autenticazione richiesta."
	case ErrTokenRequired:
		return "Token di autenticazione mancante."
	case ErrTokenInvalid:
		return "Token di autenticazione non valido."
	case ErrTokenExpired:
		return "Token di autenticazione scaduto."
	case ErrAccountInactive:
		return "Il tuo account non è attivo."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Non hai i permessi per accedere a questa risorsa."
	case ErrStudentAccessOnly:
		return "Risorsa riservata agli studenti."
	case ErrStaffAccessOnly:
		return "Risorsa riservata allo staff."
	case ErrCronSecretInvalid:
		return "Segreto di pianificazione non valido."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validazione non riuscita. Controlla i dati inseriti."
	case ErrInvalidID:
		return "Formato ID non valido."
	case ErrInvalidPayload:
		return "Payload della richiesta non valido."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Risorsa non trovata."
	case ErrConflict:
		return "La risorsa è in uno stato incompatibile con la richiesta."

	// ─── Simulation-specific ───────────────────────────────────────────
	case ErrSimulationNotPublished:
		return "La simulazione non è ancora pubblicata."
	case ErrSimulationNotDraft:
		return "La simulazione non è in stato di bozza."
	case ErrWindowNotOpen:
		return "La simulazione non è ancora disponibile."
	case ErrWindowClosed:
		return "Il periodo della simulazione è terminato."
	case ErrNotScheduled:
		return "La simulazione non ha una data programmata."
	case ErrNoActiveSession:
		return "Nessuna simulazione in corso."
	case ErrActionRejected:
		return "Azione non consentita in questo momento."
	case ErrSweepRunning:
		return "Operazione già in esecuzione."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Troppe richieste. Riprova più tardi."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrServiceUnavailable:
		return "Servizio temporaneamente non disponibile."
	case ErrInternal:
		return "Errore interno del server."
	default:
		return "Si è verificato un errore imprevisto."
	}
}
