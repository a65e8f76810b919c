package payment

import "time"

// SetNow pins the ledger clock to `now` until the returned func is called.
func SetNow(now time.Time) (restore func()) {
	nowFunc = func() time.Time { return now }
	return func() { nowFunc = time.Now }
}
