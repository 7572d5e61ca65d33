package tools

import "context"

type contextKey string

const defaultTimezoneKey contextKey = "default_timezone"

// fallbackTimezone is used when the context carries no timezone.
const fallbackTimezone = "Asia/Shanghai"

// WithDefaultTimezone records the room's timezone for tools that format
// dates.
func WithDefaultTimezone(ctx context.Context, tz string) context.Context {
	return context.WithValue(ctx, defaultTimezoneKey, tz)
}

// DefaultTimezoneFromContext returns the timezone set by
// WithDefaultTimezone, or Asia/Shanghai.
func DefaultTimezoneFromContext(ctx context.Context) string {
	if tz, ok := ctx.Value(defaultTimezoneKey).(string); ok && tz != "" {
		return tz
	}
	return fallbackTimezone
}
