// Package timewin computes the legal trading window of an intraday power
// contract from its delivery start. The exchange opens trading for a
// delivery day at 13:00 local time the day before and closes each contract
// one hour before its delivery starts.
package timewin

import "time"

// Nordic is the exchange-local zone. Europe/Stockholm switches between CET
// and CEST, which is why the open time cannot be a fixed UTC offset.
var Nordic = mustLoad("Europe/Stockholm")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// tzdata missing from the host; CET keeps winter sessions correct.
		return time.FixedZone("CET", 3600)
	}
	return loc
}

// Local open time on D-1.
const (
	openHour   = 13
	openMinute = 0
)

// TradingWindow returns (open, close) in UTC for a contract delivering at
// deliveryStartUTC. Open is 13:00 Europe/Stockholm on the day before the
// delivery date (DST-aware); close is delivery start minus one hour.
func TradingWindow(deliveryStartUTC time.Time) (time.Time, time.Time) {
	deliveryLocal := deliveryStartUTC.In(Nordic)
	d1 := deliveryLocal.AddDate(0, 0, -1)

	openLocal := time.Date(d1.Year(), d1.Month(), d1.Day(), openHour, openMinute, 0, 0, Nordic)
	closeUTC := deliveryStartUTC.Add(-time.Hour)

	return openLocal.UTC(), closeUTC.UTC()
}

// IsMarketOpen reports whether t falls inside the trading window of the
// contract delivering at deliveryStartUTC.
func IsMarketOpen(t, deliveryStartUTC time.Time) bool {
	open, close := TradingWindow(deliveryStartUTC)
	return !t.Before(open) && t.Before(close)
}
