package adapter

import "context"

// ConversionNotifier reports a monetized conversion to a third-party
// ad-network postback URL. Calls are fire-and-forget: a failure is logged
// and never rolls back entitlement activation.
type ConversionNotifier interface {
	NotifyConversion(ctx context.Context, userID, campaign string, amount int64) error
}
