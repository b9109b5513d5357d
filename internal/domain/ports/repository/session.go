package repository

// SessionStore is the encrypted, client-held key/value carrier that survives
// provider redirects. Reads of an unreadable record behave as if it were absent.
type SessionStore interface {
	Get(key string, out any) bool
	Set(key string, value any) error
	Remove(key string) error
	Clear()
}

// Session field names.
const (
	SessionUserEmail        = "userEmail"
	SessionRegisterFormData = "registerFormData"
	SessionReferrerUserID   = "referrerUserId"
	SessionPaymentIntent    = "paymentIntent"
)
